package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus records run, bet and deposit metrics.
type Prometheus struct {
	bets        *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	deposits    prometheus.Counter
	depositYen  prometheus.Counter
	gatherer    prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Prometheus {
	reg := prometheus.NewRegistry()
	m := &Prometheus{
		bets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "akatsuki_bets_total",
			Help: "bets processed by outcome",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "akatsuki_runs_total",
			Help: "runs by final status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "akatsuki_run_duration_seconds",
			Help:    "wall-clock duration of runs",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900},
		}),
		deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "akatsuki_deposits_total",
			Help: "deposits made",
		}),
		depositYen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "akatsuki_deposit_amount_yen_total",
			Help: "sum of deposited amounts",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.bets, m.runs, m.runDuration, m.deposits, m.depositYen)
	return m
}

func (m *Prometheus) ObserveBet(outcome string) {
	m.bets.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) ObserveDeposit(amount int64) {
	m.deposits.Inc()
	m.depositYen.Add(float64(amount))
}

func (m *Prometheus) ObserveRun(status string, elapsed time.Duration) {
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
