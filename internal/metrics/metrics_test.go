package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ChunkRebuilds.Inc()
	m.PathSearches.WithLabelValues("found").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunkRebuilds))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PathSearches.WithLabelValues("found")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewWithoutRegistry(t *testing.T) {
	// Два набора без регистра не должны конфликтовать
	a := New(nil)
	b := New(nil)
	a.TasksQueued.Set(3)
	b.TasksQueued.Set(5)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.TasksQueued))
}
