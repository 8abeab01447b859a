package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 5, 10, 15, 31, 0, 0, time.UTC)

func newMockStore(t *testing.T, rdb *redis.Client) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewStoreWithDB(db, rdb, nil), mock
}

func TestStoreAppendInsertsBatch(t *testing.T) {
	store, mock := newMockStore(t, nil)

	mock.ExpectExec(`INSERT INTO "article_events"`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	recs := []collector.ArticleRecord{
		{PublishedAt: "24/05/10 15:00", Category: "材料", Title: "ソニーG<6758>、自社株買い", URL: "https://kabutan.jp/n/2"},
		{PublishedAt: "24/05/10 15:30", Category: "決算", Title: "トヨタ<7203>、黒字", URL: "https://kabutan.jp/n/1"},
	}
	err := store.Append(context.Background(), collector.Source{ID: "3", Name: "市況"}, recs, testNow)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreAppendEmptyIsNoop(t *testing.T) {
	store, mock := newMockStore(t, nil)

	require.NoError(t, store.Append(context.Background(), collector.Source{ID: "3"}, nil, testNow))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreAppendWrapsDBError(t *testing.T) {
	store, mock := newMockStore(t, nil)
	dbErr := errors.New("connection reset")

	mock.ExpectExec(`INSERT INTO "article_events"`).WillReturnError(dbErr)

	err := store.Append(context.Background(), collector.Source{ID: "3"},
		[]collector.ArticleRecord{{Title: "t", URL: "https://x"}}, testNow)
	require.ErrorIs(t, err, dbErr)
}

func articleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "source_id", "captured_at", "position", "published_at",
		"category", "title", "url", "extra", "created_at",
	}).AddRow(
		"0b0c6d2e-0000-4000-8000-000000000001", "3", testNow, 0, "24/05/10 15:30",
		"決算", "トヨタ、黒字", "https://kabutan.jp/n/1", []byte(`{"source_name":"市況"}`), testNow,
	)
}

func TestStoreListArticlesUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, mock := newMockStore(t, rdb)
	mock.ExpectQuery(`SELECT \* FROM "article_events" ORDER BY captured_at DESC`).
		WillReturnRows(articleRows())

	ctx := context.Background()
	first, err := store.ListArticles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "トヨタ、黒字", first[0].Title)
	assert.Equal(t, "市況", first[0].Extra["source_name"])

	// 第二次命中缓存，不再访问数据库
	second, err := store.ListArticles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, mr.Exists("newswatch:articles:10"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListArticlesWithoutRedis(t *testing.T) {
	store, mock := newMockStore(t, nil)
	mock.ExpectQuery(`SELECT \* FROM "article_events"`).WillReturnRows(articleRows())

	list, err := store.ListArticles(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncateRunesDB(t *testing.T) {
	assert.Equal(t, "あいう", truncateRunesDB("あいうえお", 3))
	assert.Equal(t, "abc", truncateRunesDB(" abc ", 10))
	assert.Equal(t, "", truncateRunesDB("abc", 0))
}
