// Package engine 根据持久化的水位线计算每次轮询新增的文章。
//
// 水位线是某个数据源最近一次记录的文章身份（默认为标题）。每次轮询时，
// 从新到旧遍历抓取结果，遇到水位线即停止，之前的都是新文章；首次运行
// （没有水位线）只记录最新的一篇，避免把整页历史灌进日志。新文章按从旧到新的
// 顺序先写入事件日志，成功后才推进水位线，所以进程在两步之间崩溃只会导致
// 重复记录，而不会丢失。
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/LJTian/NewsWatch/internal/logger"
	"github.com/LJTian/NewsWatch/internal/processor"
)

// ErrPersistence 包装事件日志或水位线写入失败
var ErrPersistence = errors.New("engine: persistence failure")

// WatermarkStore 每个数据源一个独立的持久化槽位
type WatermarkStore interface {
	Read(ctx context.Context, sourceID string) (string, bool, error)
	Write(ctx context.Context, sourceID, value string) error
}

// Sink 只追加的事件日志
type Sink interface {
	Append(ctx context.Context, src collector.Source, records []collector.ArticleRecord, capturedAt time.Time) error
}

// Delta 一次轮询需要记录的新文章，按从旧到新排列
type Delta struct {
	Records []collector.ArticleRecord
	// ColdStart 为 true 表示该数据源此前没有水位线
	ColdStart bool
	// Watermark 为推进后的水位线，没有新文章时为空
	Watermark string
}

func (d Delta) Empty() bool {
	return len(d.Records) == 0
}

type Engine struct {
	store WatermarkStore
	sink  Sink
	proc  *processor.Processor
	log   logger.Logger
	now   func() time.Time
}

type Option func(*Engine)

// WithClock 替换记录时间的来源，测试中使用
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(store WatermarkStore, sink Sink, proc *processor.Processor, opts ...Option) *Engine {
	if proc == nil {
		proc = processor.New(processor.IdentityTitle)
	}
	e := &Engine{
		store: store,
		sink:  sink,
		proc:  proc,
		log:   logger.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync 对一个数据源执行一次增量同步。fetched 必须按从新到旧排列。
//
// 返回的 Delta 非空时，记录已经写入事件日志。若之后水位线写入失败，
// 仍返回该 Delta 以及一个 ErrPersistence 错误，调用方应照常通知。
func (e *Engine) Sync(ctx context.Context, src collector.Source, fetched []collector.ArticleRecord) (Delta, error) {
	fetched = e.proc.Normalize(fetched)
	if len(fetched) == 0 {
		return Delta{}, nil
	}

	watermark, ok, err := e.store.Read(ctx, src.ID)
	if err != nil {
		return Delta{}, fmt.Errorf("%w: read watermark %s: %w", ErrPersistence, src.ID, err)
	}

	records := ComputeDelta(watermark, ok, fetched, e.proc.Identity)
	if len(records) == 0 {
		return Delta{}, nil
	}

	delta := Delta{
		Records:   records,
		ColdStart: !ok,
		Watermark: e.proc.Identity(fetched[0]),
	}

	if err := e.sink.Append(ctx, src, records, e.now()); err != nil {
		// 水位线不动，下个周期会重新算出同样的新文章
		return Delta{}, fmt.Errorf("%w: append %d records for %s: %w", ErrPersistence, len(records), src.ID, err)
	}

	if err := e.store.Write(ctx, src.ID, delta.Watermark); err != nil {
		return delta, fmt.Errorf("%w: write watermark %s: %w", ErrPersistence, src.ID, err)
	}

	e.log.Debug("watermark advanced",
		logger.String("source", src.ID),
		logger.Int("recorded", len(records)),
		logger.Bool("cold_start", delta.ColdStart),
	)
	return delta, nil
}

// ComputeDelta 计算新文章并按从旧到新返回。
//
//   - 没有水位线：只取最新的一篇。
//   - 有水位线：从新到旧收集，遇到身份等于水位线的记录即停止（不含该记录）。
//     水位线不在当前页时返回整页，不会去补页面之外的历史。
func ComputeDelta(watermark string, present bool, fetched []collector.ArticleRecord, identity func(collector.ArticleRecord) string) []collector.ArticleRecord {
	if len(fetched) == 0 {
		return nil
	}
	if !present {
		return []collector.ArticleRecord{fetched[0]}
	}

	var out []collector.ArticleRecord
	for _, r := range fetched {
		if identity(r) == watermark {
			break
		}
		out = append(out, r)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
