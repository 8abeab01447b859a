// Package eventlog 是只追加的文章事件日志，默认落在 Excel 工作簿中。
package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
)

// CapturedAtLayout 记录时间的格式
const CapturedAtLayout = "2006-01-02 15:04:05"

// Sink 追加一批按从旧到新排列的记录
type Sink interface {
	Append(ctx context.Context, src collector.Source, records []collector.ArticleRecord, capturedAt time.Time) error
}

// Row 事件日志中的一行
type Row struct {
	CapturedAt  string    `json:"capturedAt"`
	Captured    time.Time `json:"-"`
	PublishedAt string    `json:"publishedAt"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
}

type multiSink []Sink

// Multi 依次写入所有 sink；任一失败都返回错误，由上层决定是否推进水位线
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multiSink) Append(ctx context.Context, src collector.Source, records []collector.ArticleRecord, capturedAt time.Time) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, src, records, capturedAt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
