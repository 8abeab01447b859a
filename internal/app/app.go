// Package app 根据配置组装存储、事件日志、信息流和轮询调度器，供各个命令共用。
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/NewsWatch/internal/api"
	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/LJTian/NewsWatch/internal/config"
	"github.com/LJTian/NewsWatch/internal/engine"
	"github.com/LJTian/NewsWatch/internal/eventlog"
	"github.com/LJTian/NewsWatch/internal/feed"
	"github.com/LJTian/NewsWatch/internal/logger"
	"github.com/LJTian/NewsWatch/internal/metrics"
	"github.com/LJTian/NewsWatch/internal/notifier"
	"github.com/LJTian/NewsWatch/internal/processor"
	"github.com/LJTian/NewsWatch/internal/scheduler"
	"github.com/LJTian/NewsWatch/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const appName = "NewsWatch"

type App struct {
	Config    *config.Config
	Log       logger.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Feed      *feed.Hub
	Workbook  *eventlog.WorkbookSink
	Store     *storage.Store
	Scheduler *scheduler.Scheduler
	Articles  api.ArticleLister
	Bodies    collector.BodyReader

	notifier notifier.Notifier
	redis    *redis.Client
}

// Build 组装所有组件，但不启动任何 goroutine
func Build(cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
		Feed:     feed.NewHub(cfg.FeedCapacity, log.With(logger.String("component", "feed"))),
		Workbook: eventlog.NewWorkbookSink(cfg.WorkbookFile),
		Bodies: &collector.CollyBodyReader{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.FetchTimeout,
		},
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	// 配置了 Postgres 时，事件同时写入 article_events 表，文章列表也从表中读
	var sinks []eventlog.Sink
	sinks = append(sinks, a.Workbook)
	a.Articles = api.WorkbookArticles(a.Workbook)
	if cfg.PostgresDSN != "" {
		store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, log.With(logger.String("component", "storage")))
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.Store = store
		a.redis = store.Redis
		sinks = append(sinks, store)
		a.Articles = api.StoreArticles(store)
	}

	watermarks, err := a.watermarkStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.NotifyEnabled {
		a.notifier = notifier.NewDesktop(appName, log.With(logger.String("component", "notifier")))
	} else {
		a.notifier = notifier.Nop{}
	}

	eng := engine.New(watermarks, eventlog.Multi(sinks...), processor.New(processor.ParseIdentityMode(cfg.IdentityMode)),
		engine.WithLogger(log.With(logger.String("component", "engine"))),
	)
	a.Scheduler = scheduler.New(cfg.Sources, collector.NewKabutanFetcher(cfg.UserAgent, cfg.FetchTimeout), eng,
		scheduler.WithTick(cfg.PollTick),
		scheduler.WithFeed(a.Feed),
		scheduler.WithNotifier(a.notifier),
		scheduler.WithMetrics(a.Metrics),
		scheduler.WithLogger(log.With(logger.String("component", "scheduler"))),
	)
	return a, nil
}

func (a *App) watermarkStore() (engine.WatermarkStore, error) {
	cfg := a.Config
	switch cfg.WatermarkBackend {
	case config.BackendPostgres:
		if a.Store == nil {
			return nil, errors.New("app: postgres watermark backend requires POSTGRES_DSN")
		}
		return a.Store.Watermarks(), nil
	case config.BackendRedis:
		if a.redis == nil {
			a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		}
		return storage.NewRedisWatermarkStore(a.redis, cfg.RedisPrefix), nil
	default:
		return storage.NewFileWatermarkStore(cfg.DataDir), nil
	}
}

// Backfill 把工作簿中已记录的文章按从旧到新发布到信息流，让最新的显示在最上面。
// 必须在调度器启动前调用。
func (a *App) Backfill(ctx context.Context) error {
	rows, exists, err := a.Workbook.ReadAll(ctx)
	if err != nil {
		a.publish(feed.Event{Kind: feed.KindInfo, Text: "could not read recorded articles"})
		return err
	}
	if !exists || len(rows) == 0 {
		a.publish(feed.Event{Kind: feed.KindInfo, Text: "no recorded articles yet"})
		return nil
	}

	// 超出信息流容量的旧记录发布了也会被挤掉
	if n := a.Config.FeedCapacity; n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	for _, r := range rows {
		ev := feed.Event{
			Kind: feed.KindArticle,
			Text: scheduler.ArticleLine(collector.ArticleRecord{
				PublishedAt: r.PublishedAt,
				Category:    r.Category,
				Title:       r.Title,
				URL:         r.URL,
			}),
			URL: r.URL,
			At:  r.Captured,
		}
		a.publish(ev)
	}
	a.Log.Info("feed backfilled from workbook", logger.Int("rows", len(rows)))
	return nil
}

func (a *App) publish(ev feed.Event) {
	if err := a.Feed.Publish(ev); err != nil {
		a.Log.Warn("backfill publish failed", logger.Err(err))
	}
}

// StartPolling 配置了 CRON_SPEC 时按 cron 表达式执行，否则按固定间隔
func (a *App) StartPolling() error {
	if a.Config.CronSpec != "" {
		return a.Scheduler.StartCron(a.Config.CronSpec)
	}
	return a.Scheduler.Start(a.Config.PollInterval)
}

// Close 等待通知发送完毕并关闭外部连接
func (a *App) Close() {
	if d, ok := a.notifier.(*notifier.Desktop); ok {
		done := make(chan struct{})
		go func() {
			d.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			a.Log.Warn("pending notifications abandoned")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Log.Warn("close redis failed", logger.Err(err))
		}
	}
	if a.Store != nil {
		if sqlDB, err := a.Store.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.Log.Sync()
}
