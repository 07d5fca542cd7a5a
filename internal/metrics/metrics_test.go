package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	Batches.Inc()
	BatchErrors.Inc()
	IncUserError("embed")
	IncCacheHit("lru")
	IncCommandRun("classify")
	IncCommandError("classify")
	EmbedRequests.Inc()
	EmbedErrors.Inc()
	Compressions.Inc()
	ObserveBatchDuration(time.Now().Add(-1500 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"postseq_batches_total",
		"postseq_batch_errors_total",
		"postseq_batch_duration_seconds",
		`postseq_user_errors_total{stage="embed"}`,
		`postseq_embed_cache_hits_total{layer="lru"}`,
		"postseq_embed_requests_total",
		"postseq_sequence_compressions_total",
		`postseq_command_runs_total{command="classify"}`,
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
