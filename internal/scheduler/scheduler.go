package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/LJTian/NewsWatch/internal/engine"
	"github.com/LJTian/NewsWatch/internal/feed"
	"github.com/LJTian/NewsWatch/internal/logger"
	"github.com/LJTian/NewsWatch/internal/metrics"
	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidInterval = errors.New("scheduler: interval must be positive")
	ErrAlreadyRunning  = errors.New("scheduler: polling loop is already running")
)

const DefaultTick = time.Second

// State 轮询循环的状态
type State string

const (
	StateIdle          State = "idle"
	StateRunning       State = "running"
	StateStopRequested State = "stop_requested"
)

// Syncer 对一个数据源做一次增量同步
type Syncer interface {
	Sync(ctx context.Context, src collector.Source, fetched []collector.ArticleRecord) (engine.Delta, error)
}

// Notifier 桌面通知
type Notifier interface {
	Notify(title, message string)
}

// Publisher 信息流，实现方负责把事件转交给消费方自己的 goroutine
type Publisher interface {
	Publish(ev feed.Event) error
}

type Scheduler struct {
	sources  []collector.Source
	fetcher  collector.Fetcher
	syncer   Syncer
	notifier Notifier
	feed     Publisher
	metrics  *metrics.Metrics
	log      logger.Logger
	tick     time.Duration
	now      func() time.Time

	mu    sync.Mutex
	state State
	// done 在当前循环退出时关闭，用来判断循环是否真的还活着
	done  chan struct{}
	label string

	stopRequested atomic.Bool
}

type Option func(*Scheduler)

// WithTick 设置睡眠粒度，也就是 Stop 生效的最长延迟
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithNotifier(n Notifier) Option { return func(s *Scheduler) { s.notifier = n } }
func WithFeed(p Publisher) Option { return func(s *Scheduler) { s.feed = p } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }
func WithLogger(l logger.Logger) Option { return func(s *Scheduler) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New 数据源按给定顺序轮询
func New(sources []collector.Source, fetcher collector.Fetcher, syncer Syncer, opts ...Option) *Scheduler {
	s := &Scheduler{
		sources: append([]collector.Source(nil), sources...),
		fetcher: fetcher,
		syncer:  syncer,
		log:     logger.NewNop(),
		tick:    DefaultTick,
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fixedDelay 实现 cron.Schedule：上一轮结束后固定间隔再执行。
// cron.Every 会把间隔取整到秒，这里不做取整。
type fixedDelay time.Duration

func (d fixedDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

// Start 以固定间隔启动轮询；循环已在运行时不会再启动第二个
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	return s.start(fixedDelay(interval), "interval: "+formatInterval(interval))
}

// StartCron 按 cron 表达式（标准 5 段）启动轮询
func (s *Scheduler) StartCron(spec string) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("scheduler: parse cron spec %q: %w", spec, err)
	}
	return s.StartSchedule(sched, "schedule: "+spec)
}

// StartSchedule 按任意 cron.Schedule 计算下一次执行时间
func (s *Scheduler) StartSchedule(sched cron.Schedule, label string) error {
	if sched == nil {
		return ErrInvalidInterval
	}
	return s.start(sched, label)
}

func (s *Scheduler) start(sched cron.Schedule, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aliveLocked() {
		// 停止请求还没被循环看到时，撤回请求，让原来的循环继续跑
		if s.state == StateStopRequested {
			s.stopRequested.Store(false)
			s.state = StateRunning
			s.publishStatus("running (" + s.label + ")")
		}
		return nil
	}

	s.stopRequested.Store(false)
	done := make(chan struct{})
	s.done = done
	s.state = StateRunning
	s.label = label
	s.metrics.SetRunning(true)
	s.publishStatus("running (" + label + ")")
	s.log.Info("polling loop started", logger.String("mode", label), logger.Int("sources", len(s.sources)))

	go s.loop(sched, done)
	return nil
}

// Stop 请求停止，循环会在下一个 tick 边界退出
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.aliveLocked() || s.state != StateRunning {
		return
	}
	s.stopRequested.Store(true)
	s.state = StateStopRequested
	s.log.Info("polling loop stop requested")
}

// Wait 阻塞直到当前循环退出
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning 循环 goroutine 是否还活着（包括已请求停止但尚未退出）
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked()
}

func (s *Scheduler) Sources() []collector.Source {
	return append([]collector.Source(nil), s.sources...)
}

func (s *Scheduler) aliveLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// RunOnce 同步执行一轮轮询，适合手动触发；循环运行中时拒绝执行
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	alive := s.aliveLocked()
	s.mu.Unlock()
	if alive {
		return ErrAlreadyRunning
	}
	s.runCycle(ctx, func() bool { return ctx.Err() != nil })
	return nil
}

func (s *Scheduler) loop(sched cron.Schedule, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.metrics.SetRunning(false)
		s.publishStatus("stopped")
		close(done)
		s.mu.Unlock()
		s.log.Info("polling loop stopped")
	}()

	ctx := context.Background()
	for !s.stopRequested.Load() {
		s.runCycle(ctx, s.stopRequested.Load)
		if !s.sleepUntil(sched.Next(s.now())) {
			return
		}
	}
}

// sleepUntil 以 tick 为步长睡眠到 next，每一步检查停止请求；被停止时返回 false
func (s *Scheduler) sleepUntil(next time.Time) bool {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if s.stopRequested.Load() {
			return false
		}
		if !s.now().Before(next) {
			return true
		}
		<-ticker.C
	}
}

func (s *Scheduler) runCycle(ctx context.Context, stopped func() bool) {
	start := time.Now()
	s.log.Info("start poll cycle", logger.Int("sources", len(s.sources)))

	for _, src := range s.sources {
		if stopped() {
			s.log.Info("poll cycle interrupted by stop request")
			break
		}
		s.syncSource(ctx, src)
	}

	s.publish(feed.Event{
		Kind: feed.KindSeparator,
		Text: s.now().Format("2006/01/02 15:04") + " " + strings.Repeat("-", 48),
	})
	s.metrics.ObserveCycle(time.Since(start))
	s.log.Info("poll cycle done", logger.Duration("elapsed", time.Since(start)))
}

// syncSource 处理单个数据源；任何失败（包括 panic）都只影响这一个数据源
func (s *Scheduler) syncSource(ctx context.Context, src collector.Source) {
	log := s.log.With(logger.String("source", src.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while polling source", logger.Any("panic", r))
			s.metrics.RecordPersistFailure(src.ID)
			s.publishFailure(src, fmt.Sprintf("%s could not be processed: %v", src.URL, r))
		}
	}()

	records, err := s.fetcher.Fetch(ctx, src)
	if err == nil && len(records) == 0 {
		err = collector.ErrEmptyPage
	}
	if err != nil {
		log.Warn("fetch failed", logger.String("url", src.URL), logger.Err(err))
		s.metrics.RecordFetchFailure(src.ID)
		s.publishFailure(src, fmt.Sprintf("%s could not fetch articles", src.URL))
		return
	}

	delta, err := s.syncer.Sync(ctx, src, records)
	if err != nil {
		log.Error("record articles failed", logger.Err(err))
		s.metrics.RecordPersistFailure(src.ID)
		s.publishFailure(src, fmt.Sprintf("%s could not record articles: %v", sourceLabel(src), err))
	}
	if delta.Empty() {
		return
	}

	s.metrics.RecordArticles(src.ID, len(delta.Records))
	log.Info("new articles recorded",
		logger.Int("fetched", len(records)),
		logger.Int("recorded", len(delta.Records)),
		logger.Bool("cold_start", delta.ColdStart),
	)

	if s.notifier != nil {
		s.notifier.Notify("New articles", notifyMessage(src, delta))
	}
	for _, r := range delta.Records {
		s.publish(feed.Event{
			Kind:     feed.KindArticle,
			Text:     ArticleLine(r),
			URL:      r.URL,
			SourceID: src.ID,
		})
	}
}

// ArticleLine 信息流中一篇文章的展示文本
func ArticleLine(r collector.ArticleRecord) string {
	return fmt.Sprintf("%s: [%s] %s", r.PublishedAt, r.Category, r.Title)
}

func notifyMessage(src collector.Source, d engine.Delta) string {
	if d.ColdStart {
		return sourceLabel(src) + ": latest article captured."
	}
	return fmt.Sprintf("%s: %d new articles were recorded.", sourceLabel(src), len(d.Records))
}

func sourceLabel(src collector.Source) string {
	if src.Name != "" {
		return src.Name
	}
	return src.ID
}

func formatInterval(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d min", int(d/time.Minute))
	}
	return d.String()
}

func (s *Scheduler) publishFailure(src collector.Source, text string) {
	s.publish(feed.Event{
		Kind:     feed.KindFailure,
		Text:     s.now().Format("2006-01-02 15:04:05") + ": " + text,
		SourceID: src.ID,
	})
}

func (s *Scheduler) publishStatus(text string) {
	s.publish(feed.Event{Kind: feed.KindStatus, Text: text})
}

func (s *Scheduler) publish(ev feed.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ev); err != nil {
		s.log.Warn("publish feed event failed", logger.Err(err))
	}
}
