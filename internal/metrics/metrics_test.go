package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/domain/models"
)

func TestMetrics_Engine(t *testing.T) {
	m := New()

	m.ObserveTick(3 * time.Millisecond)
	m.ObserveTick(-time.Second)
	m.EventEmitted(models.EventAggregated)
	m.EventEmitted(models.EventAggregated)
	m.EventEmitted(models.EventKnowledgeSync)
	m.PlaybookExecuted("Critical Linux", 0)
	m.PlaybookExecuted("Critical Linux", 2)
	m.SetKnowledge(models.KnowledgeLevels{Server: 42.5, Agent: 30})
	m.SetCaseCounts(models.CaseCounts{New: 1, InProgress: 2, Resolved: 3, Total: 6})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("AGGREGATED_EVENT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("KNOWLEDGE_SYNC")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PlaybookExecutions.WithLabelValues("Critical Linux")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PlaybookFailures.WithLabelValues("Critical Linux")))
	assert.Equal(t, 42.5, testutil.ToFloat64(m.KnowledgeLevel.WithLabelValues("server")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cases.WithLabelValues("In Progress")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/v1/cases/{id}", http.MethodGet, http.StatusNotFound, 2*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `openprotect_http_requests_total{code="404",method="GET",route="/api/v1/cases/{id}"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
