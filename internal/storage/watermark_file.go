package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileWatermarkStore 每个数据源一个文本文件：<Dir>/last_article_<id>.txt
type FileWatermarkStore struct {
	Dir string
}

func NewFileWatermarkStore(dir string) *FileWatermarkStore {
	return &FileWatermarkStore{Dir: dir}
}

func (f *FileWatermarkStore) path(sourceID string) string {
	return filepath.Join(f.Dir, "last_article_"+sourceID+".txt")
}

// Read 文件不存在或内容为空时返回 ok=false
func (f *FileWatermarkStore) Read(_ context.Context, sourceID string) (string, bool, error) {
	bs, err := os.ReadFile(f.path(sourceID))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read watermark %s: %w", sourceID, err)
	}
	v := strings.TrimSpace(string(bs))
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// Write 先写临时文件再 rename，进程崩溃时只会留下旧值或新值
func (f *FileWatermarkStore) Write(_ context.Context, sourceID, value string) error {
	if f.Dir != "" {
		if err := os.MkdirAll(f.Dir, 0o755); err != nil {
			return fmt.Errorf("write watermark %s: %w", sourceID, err)
		}
	}

	dir := f.Dir
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".last_article_"+sourceID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write watermark %s: %w", sourceID, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(strings.TrimSpace(value)); err != nil {
		tmp.Close()
		return fmt.Errorf("write watermark %s: %w", sourceID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write watermark %s: %w", sourceID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write watermark %s: %w", sourceID, err)
	}
	if err := os.Rename(tmpName, f.path(sourceID)); err != nil {
		return fmt.Errorf("write watermark %s: %w", sourceID, err)
	}
	return nil
}
