package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/NewsWatch/internal/app"
	"github.com/LJTian/NewsWatch/internal/config"
	"github.com/LJTian/NewsWatch/internal/feed"
	"github.com/LJTian/NewsWatch/internal/logger"
)

// 一个仅执行一轮轮询的命令行入口：适合手动触发或交给外部 cron
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
	go a.Feed.Run(ctx)

	if err := a.Scheduler.RunOnce(ctx); err != nil {
		lg.Error("poll cycle failed", logger.Err(err))
		return
	}

	events, err := waitForCycle(ctx, a.Feed)
	if err != nil {
		lg.Warn("read feed failed", logger.Err(err))
		return
	}
	// 快照最新的在前，按发生顺序打印
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.URL != "" {
			fmt.Printf("%s  %s\n", ev.Text, ev.URL)
			continue
		}
		fmt.Println(ev.Text)
	}
}

// waitForCycle 等到本轮的分隔行进入信息流
func waitForCycle(ctx context.Context, hub *feed.Hub) ([]feed.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		events, err := hub.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if len(events) > 0 && events[0].Kind == feed.KindSeparator {
			return events, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.New("timed out waiting for poll cycle output")
		case <-ticker.C:
		}
	}
}
