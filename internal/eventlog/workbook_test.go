package eventlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var src = collector.Source{ID: "3", Name: "market"}

func rec(title string) collector.ArticleRecord {
	return collector.ArticleRecord{
		PublishedAt: "24/05/10 15:30",
		Category:    "決算",
		Title:       title,
		URL:         "https://kabutan.jp/news/" + title,
	}
}

func TestWorkbookSinkCreatesHeaderAndAppendsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.xlsx")
	sink := NewWorkbookSink(path)
	ctx := context.Background()

	t1 := time.Date(2024, 5, 10, 15, 31, 0, 0, time.Local)
	t2 := t1.Add(time.Minute)
	require.NoError(t, sink.Append(ctx, src, []collector.ArticleRecord{rec("B"), rec("A")}, t1))
	require.NoError(t, sink.Append(ctx, src, []collector.ArticleRecord{rec("C")}, t2))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"2024-05-10 15:31:00", "24/05/10 15:30", "決算", "B", "https://kabutan.jp/news/B"}, rows[1])
	assert.Equal(t, "A", rows[2][3])
	assert.Equal(t, "C", rows[3][3])
	assert.Equal(t, "2024-05-10 15:32:00", rows[3][0])
}

func TestWorkbookSinkEmptyAppendDoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.xlsx")
	sink := NewWorkbookSink(path)

	require.NoError(t, sink.Append(context.Background(), src, nil, time.Now()))
	_, exists, err := sink.ReadAll(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWorkbookSinkReadAllSortsByCapturedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.xlsx")
	sink := NewWorkbookSink(path)
	ctx := context.Background()

	late := time.Date(2024, 5, 11, 9, 0, 0, 0, time.Local)
	early := time.Date(2024, 5, 10, 9, 0, 0, 0, time.Local)
	require.NoError(t, sink.Append(ctx, src, []collector.ArticleRecord{rec("late")}, late))
	require.NoError(t, sink.Append(ctx, src, []collector.ArticleRecord{rec("early")}, early))

	rows, exists, err := sink.ReadAll(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	require.Len(t, rows, 2)
	assert.Equal(t, "early", rows[0].Title)
	assert.Equal(t, "late", rows[1].Title)

	latest, err := sink.Latest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "late", latest[0].Title)
}

type fakeSink struct {
	err   error
	calls int
}

func (f *fakeSink) Append(context.Context, collector.Source, []collector.ArticleRecord, time.Time) error {
	f.calls++
	return f.err
}

func TestMultiWritesAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &fakeSink{}, &fakeSink{err: boom}

	err := Multi(a, nil, b).Append(context.Background(), src, []collector.ArticleRecord{rec("A")}, time.Now())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestMultiSingleSinkIsReturnedAsIs(t *testing.T) {
	a := &fakeSink{}
	assert.Same(t, a, Multi(a))
}
