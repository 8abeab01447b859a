package api

import (
	"context"

	"github.com/LJTian/NewsWatch/internal/eventlog"
	"github.com/LJTian/NewsWatch/internal/storage"
)

// Article 对外输出的一条已记录文章
type Article struct {
	CapturedAt  string `json:"capturedAt"`
	SourceID    string `json:"sourceId,omitempty"`
	PublishedAt string `json:"publishedAt"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	URL         string `json:"url"`
}

// ArticleLister 最近记录的文章，最新的在前
type ArticleLister interface {
	ListArticles(ctx context.Context, limit int) ([]Article, error)
}

type ArticleListerFunc func(ctx context.Context, limit int) ([]Article, error)

func (f ArticleListerFunc) ListArticles(ctx context.Context, limit int) ([]Article, error) {
	return f(ctx, limit)
}

// WorkbookArticles 从工作簿读取
func WorkbookArticles(w *eventlog.WorkbookSink) ArticleLister {
	return ArticleListerFunc(func(ctx context.Context, limit int) ([]Article, error) {
		rows, err := w.Latest(ctx, limit)
		if err != nil {
			return nil, err
		}
		out := make([]Article, 0, len(rows))
		for _, r := range rows {
			out = append(out, Article{
				CapturedAt:  r.CapturedAt,
				PublishedAt: r.PublishedAt,
				Category:    r.Category,
				Title:       r.Title,
				URL:         r.URL,
			})
		}
		return out, nil
	})
}

// StoreArticles 从 Postgres 读取（带 Redis 缓存）
func StoreArticles(s *storage.Store) ArticleLister {
	return ArticleListerFunc(func(ctx context.Context, limit int) ([]Article, error) {
		events, err := s.ListArticles(ctx, limit)
		if err != nil {
			return nil, err
		}
		out := make([]Article, 0, len(events))
		for _, e := range events {
			out = append(out, Article{
				CapturedAt:  e.CapturedAt.Local().Format(storage.CapturedAtLayout),
				SourceID:    e.SourceID,
				PublishedAt: e.PublishedAt,
				Category:    e.Category,
				Title:       e.Title,
				URL:         e.URL,
			})
		}
		return out, nil
	})
}
