package observ

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetrics(reg)

	m.Observe("get", "ok", time.Millisecond)
	m.Observe("get", "ok", time.Millisecond)
	m.Observe("get", "not_found", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ops.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("get", "not_found")))

	n, err := testutil.GatherAndCount(reg, "forum_store_op_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewLogger(t *testing.T) {
	for _, tc := range []struct {
		env, level string
	}{
		{"production", "warn"},
		{"development", "debug"},
		{"development", "nonsense"},
	} {
		logger, err := NewLogger(tc.env, tc.level)
		require.NoError(t, err, tc.env)
		require.NotNil(t, logger)
	}

	logger, _ := NewLogger("production", "warn")
	assert.False(t, logger.Core().Enabled(-1))
}
