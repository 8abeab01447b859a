package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/LJTian/NewsWatch/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// CapturedAtLayout 事件日志中记录时间的格式，与工作簿保持一致
const CapturedAtLayout = "2006-01-02 15:04:05"

// ArticleEvent 事件日志中的一行：某个时刻记录下的一篇新文章
type ArticleEvent struct {
	ID          string            `gorm:"primaryKey;size:36" json:"id"`
	SourceID    string            `gorm:"size:64;index" json:"sourceId"`
	CapturedAt  time.Time         `gorm:"index" json:"capturedAt"`
	// Position 为同一批次内的写入顺序
	Position    int               `json:"position"`
	// PublishedAt 为站点原样给出的时间字符串
	PublishedAt string            `gorm:"size:64" json:"publishedAt"`
	Category    string            `gorm:"size:128" json:"category"`
	Title       string            `gorm:"size:512" json:"title"`
	URL         string            `gorm:"size:1024" json:"url"`
	Extra       datatypes.JSONMap `gorm:"type:jsonb" json:"extra"`

	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client

	log logger.Logger
}

// NewStore 连接 Postgres 并迁移表结构；redisAddr 为空时不启用列表缓存
func NewStore(dsn, redisAddr string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&ArticleEvent{}, &Watermark{}); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis ping failed", logger.Err(err))
		}
	}

	return NewStoreWithDB(db, rdb, log), nil
}

// NewStoreWithDB 复用已有连接，测试中配合 sqlmock 使用
func NewStoreWithDB(db *gorm.DB, rdb *redis.Client, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{DB: db, Redis: rdb, log: log}
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// Append 追加一批记录，顺序即写入顺序（从旧到新）
func (s *Store) Append(ctx context.Context, src collector.Source, records []collector.ArticleRecord, capturedAt time.Time) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]ArticleEvent, 0, len(records))
	for i, r := range records {
		extra := datatypes.JSONMap{"source_name": src.Name}
		if codes := collector.ExtractStockCodes(r.Title); len(codes) > 0 {
			extra["stock_codes"] = codes
		}
		rows = append(rows, ArticleEvent{
			ID:          uuid.NewString(),
			SourceID:    src.ID,
			CapturedAt:  capturedAt,
			Position:    i,
			PublishedAt: truncateRunesDB(toValidUTF8(r.PublishedAt), 64),
			Category:    truncateRunesDB(toValidUTF8(r.Category), 128),
			Title:       truncateRunesDB(toValidUTF8(r.Title), 512),
			URL:         truncateRunesDB(r.URL, 1024),
			Extra:       extra,
		})
	}

	if err := s.DB.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("append %d events for %s: %w", len(rows), src.ID, err)
	}
	// 不做缓存删除，依赖短 TTL 自然过期
	return nil
}

const listCacheTTL = time.Minute

// ListArticles 按记录时间倒序返回最近的文章，并使用 Redis 做简单缓存
func (s *Store) ListArticles(ctx context.Context, limit int) ([]ArticleEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	cacheKey := fmt.Sprintf("%s:articles:%d", defaultKeyPrefix, limit)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []ArticleEvent
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []ArticleEvent
	err := s.DB.WithContext(ctx).
		Order("captured_at DESC").
		Order("position DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}

	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			if err := s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err(); err != nil {
				s.log.Debug("cache article list failed", logger.Err(err))
			}
		}
	}

	return list, nil
}
