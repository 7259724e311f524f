// Package metrics provides Prometheus metrics for ddnsweaver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "ddnsweaver"

// Update outcome label values.
const (
	OutcomeUpdated    = "updated"
	OutcomeUnchanged  = "unchanged"
	OutcomeValidation = "bad_request"
	OutcomeAuth       = "unauthorized"
	OutcomeInternal   = "internal_error"
)

// Store operation label values.
const (
	OpGet = "get"
	OpPut = "put"

	ResultSuccess  = "success"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

var (
	// BuildInfo is a constant gauge carrying version labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information for ddnsweaver.",
	}, []string{"version", "go_version"})

	// UpdatesTotal counts handled update requests by outcome.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "updates_total",
		Help:      "Update requests handled, by outcome.",
	}, []string{"outcome"})

	// DNSUpsertDuration observes provider upsert latency.
	DNSUpsertDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "dns_upsert_duration_seconds",
		Help:      "Latency of DNS upsert calls, by provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	// StoreOperationsTotal counts credential store calls.
	StoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "store_operations_total",
		Help:      "Credential store operations, by operation and result.",
	}, []string{"op", "result"})
)

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Recorder is the subset of metrics the update handler reports to.
type Recorder interface {
	Update(outcome string)
	Upsert(provider string, seconds float64)
	Store(op, result string)
}

// Prometheus records into the package-level collectors.
type Prometheus struct{}

func (Prometheus) Update(outcome string) {
	UpdatesTotal.WithLabelValues(outcome).Inc()
}

func (Prometheus) Upsert(provider string, seconds float64) {
	DNSUpsertDuration.WithLabelValues(provider).Observe(seconds)
}

func (Prometheus) Store(op, result string) {
	StoreOperationsTotal.WithLabelValues(op, result).Inc()
}

// Nop discards all observations.
type Nop struct{}

func (Nop) Update(string)          {}
func (Nop) Upsert(string, float64) {}
func (Nop) Store(string, string)   {}
