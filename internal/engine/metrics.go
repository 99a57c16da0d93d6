package engine

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for generations_completed_total.
const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeCancelled = "cancelled"
	outcomeDiscarded = "discarded"
)

// Action label values for stale_generations_total.
const (
	staleFailed     = "failed"
	staleRelaunched = "relaunched"
)

// Metrics counts generation work. A nil registerer leaves the collectors
// unregistered, which is what tests and one-shot commands want.
type Metrics struct {
	Started   prometheus.Counter
	Completed *prometheus.CounterVec
	Stale     *prometheus.CounterVec
	InFlight  prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mealscribe",
			Name:      "generations_started_total",
			Help:      "Recipe generations launched, including retries and recoveries.",
		}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealscribe",
			Name:      "generations_completed_total",
			Help:      "Recipe generations that finished, by outcome.",
		}, []string{"outcome"}),
		Stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealscribe",
			Name:      "stale_generations_total",
			Help:      "Generating records found at startup, by recovery action.",
		}, []string{"action"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mealscribe",
			Name:      "generations_in_flight",
			Help:      "Generations currently waiting on the model.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Started, m.Completed, m.Stale, m.InFlight)
	}
	return m
}
