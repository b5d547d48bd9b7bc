package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	m := New()

	m.RecordRun("auto")
	m.RecordRun("auto")
	m.RecordRun("manual")

	assert.InDelta(t, 2, testutil.ToFloat64(m.runsTotal.WithLabelValues("auto")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runsTotal.WithLabelValues("manual")), 1e-9)
}

func TestRecordDomain(t *testing.T) {
	m := New()

	m.RecordDomain("done", 2, 0.92)
	m.RecordDomain("escalated", 0, 0.10)

	assert.InDelta(t, 1, testutil.ToFloat64(m.domainRunsTotal.WithLabelValues("done")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.domainRunsTotal.WithLabelValues("escalated")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.repairAttempts), 1e-9)
}

func TestRecordConflict(t *testing.T) {
	m := New()
	m.RecordConflict("blocking")
	assert.InDelta(t, 1, testutil.ToFloat64(m.conflictsTotal.WithLabelValues("blocking")), 1e-9)
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.RecordRun("auto")
	m.RecordDomain("done", 1, 0.9)
	m.ObserveLayer(0, 3, 250*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "crewd_runs_total"), "missing runs_total")
	assert.True(t, strings.Contains(body, "crewd_safety_score"), "missing safety_score")
	assert.True(t, strings.Contains(body, "crewd_layer_duration_seconds"), "missing layer_duration")
	assert.True(t, strings.Contains(body, "go_goroutines"), "missing go collector")
}

func TestRegistriesAreIsolated(t *testing.T) {
	a := New()
	b := New()
	a.RecordRun("auto")

	assert.InDelta(t, 1, testutil.ToFloat64(a.runsTotal.WithLabelValues("auto")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(b.runsTotal.WithLabelValues("auto")), 1e-9)
}
