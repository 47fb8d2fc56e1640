package handler

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/keydesk/keydesk/internal/metrics"
)

// MetricsHandler exposes in-memory metrics in Prometheus text format.
// It backs /metrics when METRICS_BACKEND=memory.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "keydesk_keys_operations_total{op=\"create\"} %d\n", snap.KeysCreated)
	writeMetric(w, "keydesk_keys_operations_total{op=\"update\"} %d\n", snap.KeysUpdated)
	writeMetric(w, "keydesk_keys_operations_total{op=\"revoke\"} %d\n", snap.KeysRevoked)
	writeLabeled(w, "keydesk_keys_rejected_total", "reason", snap.KeysRejected)
	writeMetric(w, "keydesk_keys_idempotent_replays_total %d\n", snap.IdempotentReplays)

	writeLabeled(w, "keydesk_verify_requests_total", "result", snap.Verifications)
	writeMetric(w, "keydesk_verify_duration_seconds_sum %.6f\n", float64(snap.VerifyTotalNs)/1e9)
	writeMetric(w, "keydesk_verify_cache_total{outcome=\"hit\"} %d\n", snap.VerifyCacheHits)
	writeMetric(w, "keydesk_verify_cache_total{outcome=\"miss\"} %d\n", snap.VerifyCacheMisses)
	writeMetric(w, "keydesk_rate_limited_total %d\n", snap.RateLimited)

	writeLabeled(w, "keydesk_advisory_responses_total", "outcome", snap.Advisory)
	writeEvents(w, snap.Events)
}

// writeEvents splits "stage/outcome" keys into two labels.
func writeEvents(w http.ResponseWriter, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stage, outcome, _ := strings.Cut(k, "/")
		writeMetric(w, "keydesk_events_total{stage=%q,outcome=%q} %d\n", stage, outcome, counts[k])
	}
}

// writeLabeled writes one sample per label value, in sorted order.
func writeLabeled(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
