package eventlog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/xuri/excelize/v2"
)

// Header 工作簿首行，首次写入时创建
var Header = []string{"DateTimeChecked", "NewsTime", "Category", "Title", "URL"}

// WorkbookSink 把事件追加到 .xlsx 工作簿的活动工作表
type WorkbookSink struct {
	path string
	mu   sync.Mutex
}

func NewWorkbookSink(path string) *WorkbookSink {
	return &WorkbookSink{path: path}
}

func (w *WorkbookSink) Path() string {
	return w.path
}

func (w *WorkbookSink) Append(_ context.Context, _ collector.Source, records []collector.ArticleRecord, capturedAt time.Time) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("workbook: read rows: %w", err)
	}

	next := len(rows) + 1
	stamp := capturedAt.Format(CapturedAtLayout)
	for _, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, next)
		if err != nil {
			return fmt.Errorf("workbook: %w", err)
		}
		values := []any{stamp, r.PublishedAt, r.Category, r.Title, r.URL}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("workbook: write row %d: %w", next, err)
		}
		next++
	}

	return w.save(f)
}

// openOrCreate 文件不存在时新建工作簿并写入表头
func (w *WorkbookSink) openOrCreate() (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("workbook: open %s: %w", w.path, err)
	}

	f = excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("workbook: write header: %w", err)
	}
	return f, nil
}

// save 先写到同目录临时文件再 rename，避免写到一半的工作簿
func (w *WorkbookSink) save(f *excelize.File) error {
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workbook: %w", err)
		}
	}
	tmp := w.path + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("workbook: save: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("workbook: save: %w", err)
	}
	return nil
}

// ReadAll 读取所有数据行并按记录时间升序排列，无法解析的时间排在最前。
// 工作簿不存在时 exists 为 false。
func (w *WorkbookSink) ReadAll(_ context.Context) (rows []Row, exists bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("workbook: open %s: %w", w.path, err)
	}
	defer f.Close()

	raw, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, true, fmt.Errorf("workbook: read rows: %w", err)
	}
	if len(raw) <= 1 {
		return nil, true, nil
	}

	rows = make([]Row, 0, len(raw)-1)
	for _, cols := range raw[1:] {
		cell := func(i int) string {
			if i < len(cols) {
				return cols[i]
			}
			return ""
		}
		r := Row{
			CapturedAt:  cell(0),
			PublishedAt: cell(1),
			Category:    cell(2),
			Title:       cell(3),
			URL:         cell(4),
		}
		if t, err := time.ParseInLocation(CapturedAtLayout, r.CapturedAt, time.Local); err == nil {
			r.Captured = t
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Captured.Before(rows[j].Captured)
	})
	return rows, true, nil
}

// Latest 返回最近记录的 limit 行，最新的在前
func (w *WorkbookSink) Latest(ctx context.Context, limit int) ([]Row, error) {
	rows, _, err := w.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	out := make([]Row, 0, limit)
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}
