package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/NewsWatch/internal/api"
	"github.com/LJTian/NewsWatch/internal/app"
	"github.com/LJTian/NewsWatch/internal/config"
	"github.com/LJTian/NewsWatch/internal/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	lg, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	cfg, err := config.Load(lg)
	if err != nil {
		lg.Error("load config failed", logger.Err(err))
		os.Exit(1)
	}

	a, err := app.Build(cfg, lg)
	if err != nil {
		lg.Error("init app failed", logger.Err(err))
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.Feed.Run(ctx)
	}()

	// 先把历史记录灌进信息流，再启动轮询
	if err := a.Backfill(ctx); err != nil {
		lg.Warn("backfill feed failed", logger.Err(err))
	}
	if err := a.StartPolling(); err != nil {
		lg.Error("start polling failed", logger.Err(err))
		os.Exit(1)
	}

	// API
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(lg.With(logger.String("component", "http"))))
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	api.NewServer(api.Deps{
		Feed:      a.Feed,
		Articles:  a.Articles,
		Bodies:    a.Bodies,
		Scheduler: a.Scheduler,
		Gatherer:  a.Registry,
		Logger:    lg.With(logger.String("component", "api")),
	}).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("starting api server", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server exit", logger.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown failed", logger.Err(err))
	}

	a.Scheduler.Stop()
	if err := a.Scheduler.Wait(shutdownCtx); err != nil {
		lg.Warn("polling loop did not stop in time", logger.Err(err))
	}
	<-hubDone
}
