package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RegistersAndCounts(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()
	require.NotNil(t, m)

	m.CounterSyncedActivities.Add(3)
	m.CounterSyncCycles.WithLabelValues("success").Inc()
	m.GaugeLifeSignal.Set(1)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, fam := range families {
		byName[fam.GetName()] = fam
	}

	synced, ok := byName["velodash_test_server_synced_activities"]
	require.True(t, ok)
	assert.Equal(t, float64(3), synced.GetMetric()[0].GetCounter().GetValue())

	cycles, ok := byName["velodash_test_server_sync_cycles"]
	require.True(t, ok)
	assert.Equal(t, float64(1), cycles.GetMetric()[0].GetCounter().GetValue())

	life, ok := byName["velodash_test_server_life_signal"]
	require.True(t, ok)
	assert.Equal(t, float64(1), life.GetMetric()[0].GetGauge().GetValue())
}
