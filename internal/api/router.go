package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/LJTian/NewsWatch/internal/config"
	"github.com/LJTian/NewsWatch/internal/feed"
	"github.com/LJTian/NewsWatch/internal/logger"
	"github.com/LJTian/NewsWatch/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultArticleLimit = 50
	maxArticleLimit     = 500
)

// Feed 信息流的只读视图
type Feed interface {
	Snapshot(ctx context.Context) ([]feed.Event, error)
	Subscribe(ctx context.Context) (<-chan feed.Event, func(), error)
}

// Controller 轮询循环的控制面
type Controller interface {
	Start(interval time.Duration) error
	Stop()
	State() scheduler.State
	IsRunning() bool
	Sources() []collector.Source
}

type Deps struct {
	Feed      Feed
	Articles  ArticleLister
	Bodies    collector.BodyReader
	Scheduler Controller
	Gatherer  prometheus.Gatherer
	Logger    logger.Logger
}

type Server struct {
	feed     Feed
	articles ArticleLister
	bodies   collector.BodyReader
	sched    Controller
	gatherer prometheus.Gatherer
	log      logger.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		feed:     d.Feed,
		articles: d.Articles,
		bodies:   d.Bodies,
		sched:    d.Scheduler,
		gatherer: d.Gatherer,
		log:      d.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	return s
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/feed", s.listFeed)
		v1.GET("/feed/stream", s.streamFeed)
		v1.GET("/articles", s.listArticles)
		v1.GET("/articles/body", s.articleBody)
		v1.GET("/scheduler", s.schedulerStatus)
		v1.POST("/scheduler/start", s.startScheduler)
		v1.POST("/scheduler/stop", s.stopScheduler)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func (s *Server) listFeed(c *gin.Context) {
	events, err := s.feed.Snapshot(c.Request.Context())
	if err != nil {
		s.log.Warn("feed snapshot failed", logger.Err(err))
		fail(c, http.StatusServiceUnavailable, "unavailable", "feed is not available")
		return
	}
	ok(c, events)
}

// streamFeed 以 SSE 推送之后发布的事件，事件名为事件类型
func (s *Server) streamFeed(c *gin.Context) {
	ctx := c.Request.Context()
	events, cleanup, err := s.feed.Subscribe(ctx)
	if err != nil {
		s.log.Warn("feed subscribe failed", logger.Err(err))
		fail(c, http.StatusServiceUnavailable, "unavailable", "feed is not available")
		return
	}
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (s *Server) listArticles(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultArticleLimit)))
	if err != nil || limit <= 0 {
		limit = defaultArticleLimit
	}
	if limit > maxArticleLimit {
		limit = maxArticleLimit
	}

	items, err := s.articles.ListArticles(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("list articles failed", logger.Err(err))
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, items)
}

func (s *Server) articleBody(c *gin.Context) {
	raw := c.Query("url")
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail(c, http.StatusBadRequest, "bad_request", "url must be an absolute http(s) url")
		return
	}

	body, err := s.bodies.Read(c.Request.Context(), u.String())
	if err != nil {
		s.log.Warn("read article body failed", logger.String("url", raw), logger.Err(err))
		fail(c, http.StatusBadGateway, "upstream_error", "could not read article body")
		return
	}
	ok(c, body)
}

type schedulerView struct {
	State   scheduler.State    `json:"state"`
	Running bool               `json:"running"`
	Sources []collector.Source `json:"sources"`
}

func (s *Server) view() schedulerView {
	return schedulerView{
		State:   s.sched.State(),
		Running: s.sched.IsRunning(),
		Sources: s.sched.Sources(),
	}
}

func (s *Server) schedulerStatus(c *gin.Context) {
	ok(c, s.view())
}

type startRequest struct {
	// Interval 以分钟为单位，非法时按 1 分钟处理
	Interval string `json:"interval"`
}

func (s *Server) startScheduler(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	interval, err := config.ParseIntervalMinutes(req.Interval)
	if err != nil {
		s.log.Warn("invalid interval from request, using default",
			logger.String("value", req.Interval),
			logger.Duration("interval", interval),
		)
	}
	if err := s.sched.Start(interval); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	ok(c, s.view())
}

func (s *Server) stopScheduler(c *gin.Context) {
	s.sched.Stop()
	ok(c, s.view())
}
