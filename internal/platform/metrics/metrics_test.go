package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDuplicateCheck("exact", 3)
	m.StoreRetry("put_quote", "conflict")
	m.StoreGaveUp("put_quote")
	m.CascadeStep("rename", "updated")
	m.PipelineEvent("quote.created", "acked")
	m.SetBacklog(7)
	m.TagListLookup(true)

	assert.InDelta(t, 1, testutil.ToFloat64(m.DuplicateChecks.WithLabelValues("exact")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreRetries.WithLabelValues("put_quote", "conflict")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CascadeQuotes.WithLabelValues("rename", "updated")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.PipelineBacklog), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TagListCache.WithLabelValues("hit")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestNilMetrics_IsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveDuplicateCheck("none", 0)
		m.StoreRetry("x", "y")
		m.StoreGaveUp("x")
		m.CascadeStep("rename", "failed")
		m.PipelineEvent("quote.deleted", "dead_lettered")
		m.SetBacklog(1)
		m.TagListLookup(false)
	})
}
