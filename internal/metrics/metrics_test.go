package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSuccess("pothole", 10*time.Millisecond)
	m.ObserveSuccess("pothole", 20*time.Millisecond)
	m.ObserveFailure("decode", time.Millisecond)
	m.ObservePersistFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Predictions.WithLabelValues("pothole")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistErrors))

	count, err := testutil.GatherAndCount(reg, "sheharfix_classify_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	assert.NotPanics(t, func() { m.ObserveSuccess("garbage", 0) })

	// A second registry accepts a fresh set without conflicts.
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
