package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Watermark 每个数据源最近一次记录的文章身份
type Watermark struct {
	SourceID  string    `gorm:"primaryKey;size:64" json:"sourceId"`
	Value     string    `gorm:"size:512" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DBWatermarkStore 基于 Postgres 的水位线存储
type DBWatermarkStore struct {
	db *gorm.DB
}

// Watermarks 返回共用同一个数据库连接的水位线存储
func (s *Store) Watermarks() *DBWatermarkStore {
	return &DBWatermarkStore{db: s.DB}
}

func (d *DBWatermarkStore) Read(ctx context.Context, sourceID string) (string, bool, error) {
	var wm Watermark
	err := d.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&wm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("db read watermark %s: %w", sourceID, err)
	}
	v := strings.TrimSpace(wm.Value)
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// Write 以 source_id 为冲突键做 upsert
func (d *DBWatermarkStore) Write(ctx context.Context, sourceID, value string) error {
	wm := Watermark{
		SourceID:  sourceID,
		Value:     strings.TrimSpace(value),
		UpdatedAt: time.Now(),
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&wm).Error
	if err != nil {
		return fmt.Errorf("db write watermark %s: %w", sourceID, err)
	}
	return nil
}
