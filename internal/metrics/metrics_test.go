package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordArticles("3", 2)
	m.RecordArticles("3", 0)
	m.RecordFetchFailure("10")
	m.RecordPersistFailure("10")
	m.ObserveCycle(1500 * time.Millisecond)
	m.SetRunning(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArticlesRecorded.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("10")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("10")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRunning))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))

	m.SetRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SchedulerRunning))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordArticles("3", 1)
		m.RecordFetchFailure("3")
		m.RecordPersistFailure("3")
		m.ObserveCycle(time.Second)
		m.SetRunning(true)
	})
}
