// Package metrics exposes Prometheus instrumentation for the profile pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Compression outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeSummarizerErr = "summarizer_error"
	OutcomeParseErr      = "parse_error"
	OutcomeSaveErr       = "save_error"
)

var (
	// CompressionsTotal counts compression attempts by outcome.
	CompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowch_compressions_total",
			Help: "Total number of profile compressions by outcome",
		},
		[]string{"outcome"},
	)

	// CompressionLatency tracks summarizer round-trip time.
	CompressionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cowch_compression_duration_seconds",
			Help:    "Profile compression latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// CompressionsCoalesced counts triggers that joined an in-flight compression.
	CompressionsCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cowch_compressions_coalesced_total",
			Help: "Compression triggers that shared an in-flight compression for the same user",
		},
	)

	// ChatRequestsTotal counts chat turns by detected pattern and status.
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowch_chat_requests_total",
			Help: "Total chat turns by detected pattern and status",
		},
		[]string{"pattern", "status"},
	)

	// StorageErrorsTotal counts recovered storage failures.
	StorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowch_storage_errors_total",
			Help: "Recovered storage adapter failures by operation",
		},
		[]string{"op"},
	)

	// ImagineEngagementsTotal counts IMAGINE domain engagement events.
	ImagineEngagementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowch_imagine_engagements_total",
			Help: "IMAGINE domain engagement events",
		},
		[]string{"domain"},
	)
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
