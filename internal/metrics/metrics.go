package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Batches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postseq_batches_total",
		Help: "Total batches forwarded through the encoder",
	})
	BatchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postseq_batch_errors_total",
		Help: "Total batches aborted",
	})
	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "postseq_batch_duration_seconds",
		Help:    "Batch processing duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	UserErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postseq_user_errors_total",
		Help: "Per-user failures by pipeline stage",
	}, []string{"stage"})
	EmbedRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postseq_embed_requests_total",
		Help: "Embedding requests sent to the model service",
	})
	EmbedErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postseq_embed_errors_total",
		Help: "Embedding requests that failed",
	})
	EmbedCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postseq_embed_cache_hits_total",
		Help: "Embedding cache hits by cache layer",
	}, []string{"layer"})
	Compressions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postseq_sequence_compressions_total",
		Help: "User sequences reduced by clustering",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postseq_command_runs_total",
		Help: "CLI command executions",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postseq_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(Batches, BatchErrors, BatchDuration, UserErrors, EmbedRequests, EmbedErrors,
		EmbedCacheHits, Compressions, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveBatchDuration records a batch duration since start.
func ObserveBatchDuration(start time.Time) {
	BatchDuration.Observe(time.Since(start).Seconds())
}

func IncUserError(stage string)  { UserErrors.WithLabelValues(stage).Inc() }
func IncCacheHit(layer string)   { EmbedCacheHits.WithLabelValues(layer).Inc() }
func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
