package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/LJTian/NewsWatch/internal/config"
	"github.com/LJTian/NewsWatch/internal/feed"
	"github.com/LJTian/NewsWatch/internal/scheduler"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		PollInterval:     time.Minute,
		PollTick:         10 * time.Millisecond,
		FetchTimeout:     time.Second,
		UserAgent:        "NewsWatchTest/1.0",
		DataDir:          dir,
		WorkbookFile:     filepath.Join(dir, "articles.xlsx"),
		WatermarkBackend: config.BackendFile,
		IdentityMode:     "title",
		FeedCapacity:     10,
		Sources:          config.DefaultSources(),
	}
}

func runHub(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Feed.Run(ctx)
}

func snapshot(t *testing.T, a *App, want int) []feed.Event {
	t.Helper()
	var events []feed.Event
	require.Eventually(t, func() bool {
		var err error
		events, err = a.Feed.Snapshot(context.Background())
		return err == nil && len(events) == want
	}, time.Second, 5*time.Millisecond)
	return events
}

func TestBuildWithFileBackend(t *testing.T) {
	a, err := Build(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Store)
	assert.Equal(t, scheduler.StateIdle, a.Scheduler.State())
	assert.Len(t, a.Scheduler.Sources(), len(config.DefaultSourceURLs))
}

func TestBuildWithRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.WatermarkBackend = config.BackendRedis
	cfg.RedisAddr = mr.Addr()

	a, err := Build(cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.redis)
}

func TestBuildPostgresBackendNeedsDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatermarkBackend = config.BackendPostgres
	_, err := Build(cfg, nil)
	assert.Error(t, err)
}

func TestBackfillEmptyWorkbook(t *testing.T) {
	a, err := Build(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()
	runHub(t, a)

	require.NoError(t, a.Backfill(context.Background()))
	events := snapshot(t, a, 1)
	assert.Equal(t, feed.KindInfo, events[0].Kind)
}

func TestBackfillPublishesOldestFirst(t *testing.T) {
	cfg := testConfig(t)
	cfg.FeedCapacity = 2
	a, err := Build(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	src := collector.Source{ID: "3"}
	base := time.Date(2024, 5, 10, 9, 0, 0, 0, time.Local)
	for i, title := range []string{"first", "second", "third"} {
		require.NoError(t, a.Workbook.Append(context.Background(), src, []collector.ArticleRecord{
			{PublishedAt: "09:0" + string(rune('0'+i)), Category: "市況", Title: title, URL: "https://kabutan.jp/" + title},
		}, base.Add(time.Duration(i)*time.Minute)))
	}

	runHub(t, a)
	require.NoError(t, a.Backfill(context.Background()))

	// 容量为 2，只保留最近两条，最新的在前
	events := snapshot(t, a, 2)
	assert.Equal(t, "09:02: [市況] third", events[0].Text)
	assert.Equal(t, "09:01: [市況] second", events[1].Text)
	assert.Equal(t, "https://kabutan.jp/third", events[0].URL)
}
