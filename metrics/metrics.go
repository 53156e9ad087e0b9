// Package metrics exposes simulation activity to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dagsim"

var (
	registry = prometheus.NewRegistry()

	Ticks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Simulation ticks executed.",
	}, []string{"protocol"})

	Transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Transactions generated, split into fresh ids and reissued ones.",
	}, []string{"protocol", "kind"})

	ReissueRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reissue_requests_total",
		Help:      "Ids handed to an id bag for another attempt.",
	}, []string{"protocol"})

	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Transactions delivered to miners, split into new and duplicate.",
	}, []string{"protocol", "kind"})

	ConsensusEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consensus_events_total",
		Help:      "Acceptance changes recorded by miners, by the state entered.",
	}, []string{"protocol", "state"})

	Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Finished runs by outcome.",
	}, []string{"protocol", "outcome"})

	RunTicks = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_ticks",
		Help:      "Ticks per finished run.",
		Buckets:   prometheus.ExponentialBuckets(16, 2, 12),
	}, []string{"protocol"})

	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock time per finished run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"protocol"})
)

func init() {
	registry.MustRegister(Ticks, Transactions, ReissueRequests, Deliveries, ConsensusEvents, Runs, RunTicks, RunDuration)
}

// Registry returns the registry all simulation collectors live in.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
