package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Metrics holds the Prometheus collectors for training runs. Each instance
// carries its own registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	RoundsTotal          *prometheus.CounterVec
	ObjectiveEvaluations *prometheus.CounterVec
	RoundDuration        *prometheus.HistogramVec
	RelativeError        *prometheus.GaugeVec
	ActiveTrainings      prometheus.Gauge
	TrainingsTotal       prometheus.Counter
	DegenerateRounds     *prometheus.CounterVec
}

// NewMetrics creates and registers all axonfit collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RoundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axonfit_rounds_total",
				Help: "Total basis-growth rounds completed by target function and trainer",
			},
			[]string{"function", "trainer"},
		),

		ObjectiveEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axonfit_objective_evaluations_total",
				Help: "Total objective evaluations spent by the derivative-free search",
			},
			[]string{"function"},
		),

		RoundDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axonfit_round_duration_seconds",
				Help:    "Duration of each basis-growth round in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"function"},
		),

		RelativeError: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "axonfit_relative_error",
				Help: "Latest relative residual norm by target function and trainer",
			},
			[]string{"function", "trainer"},
		),

		ActiveTrainings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "axonfit_active_trainings",
				Help: "Number of training runs currently in progress",
			},
		),

		TrainingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "axonfit_trainings_total",
				Help: "Total training runs started",
			},
		),

		DegenerateRounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axonfit_degenerate_rounds_total",
				Help: "Rounds whose candidate collapsed into the existing basis",
			},
			[]string{"function"},
		),
	}

	m.registry.MustRegister(
		m.RoundsTotal,
		m.ObjectiveEvaluations,
		m.RoundDuration,
		m.RelativeError,
		m.ActiveTrainings,
		m.TrainingsTotal,
		m.DegenerateRounds,
	)
	return m
}

// ObserveRound records one completed basis-growth round.
func (m *Metrics) ObserveRound(function, trainer string, elapsed time.Duration, relativeError float64) {
	m.RoundDuration.WithLabelValues(function).Observe(elapsed.Seconds())
	m.RoundsTotal.WithLabelValues(function, trainer).Inc()
	m.RelativeError.WithLabelValues(function, trainer).Set(relativeError)

	log.Debug().
		Str("function", function).
		Str("trainer", trainer).
		Float64("err_rel", relativeError).
		Dur("duration", elapsed).
		Msg("round recorded")
}

// TrainingStarted bumps the active/total training gauges.
func (m *Metrics) TrainingStarted() {
	m.ActiveTrainings.Inc()
	m.TrainingsTotal.Inc()
}

// TrainingFinished releases the active training slot.
func (m *Metrics) TrainingFinished() {
	m.ActiveTrainings.Dec()
}

// RecordEvaluations adds objective evaluations spent on a function.
func (m *Metrics) RecordEvaluations(function string, n int) {
	m.ObjectiveEvaluations.WithLabelValues(function).Add(float64(n))
}

// RecordDegenerate counts a degenerate candidate for a function.
func (m *Metrics) RecordDegenerate(function string) {
	m.DegenerateRounds.WithLabelValues(function).Inc()
}

// Handler exposes the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MetricSummary is a compact JSON view of the counters for the /summary
// endpoint, assembled from the gathered metric families.
type MetricSummary struct {
	Rounds          float64   `json:"rounds_total"`
	Evaluations     float64   `json:"objective_evaluations_total"`
	Trainings       float64   `json:"trainings_total"`
	ActiveTrainings float64   `json:"active_trainings"`
	Degenerate      float64   `json:"degenerate_rounds_total"`
	Generated       time.Time `json:"generated"`
}

// Summary totals the registered counters across label values.
func (m *Metrics) Summary() (MetricSummary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return MetricSummary{}, err
	}

	s := MetricSummary{Generated: time.Now().UTC()}
	for _, fam := range families {
		switch fam.GetName() {
		case "axonfit_rounds_total":
			s.Rounds = sumFamily(fam)
		case "axonfit_objective_evaluations_total":
			s.Evaluations = sumFamily(fam)
		case "axonfit_trainings_total":
			s.Trainings = sumFamily(fam)
		case "axonfit_active_trainings":
			s.ActiveTrainings = sumFamily(fam)
		case "axonfit_degenerate_rounds_total":
			s.Degenerate = sumFamily(fam)
		}
	}
	return s, nil
}

// SummaryHandler implements GET /api/v1/summary.
func (m *Metrics) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	s, err := m.Summary()
	if err != nil {
		http.Error(w, "gathering metrics failed", http.StatusInternalServerError)
		return
	}
	if err := json.NewEncoder(w).Encode(s); err != nil {
		log.Error().Err(err).Msg("encoding metric summary failed")
	}
}

func sumFamily(fam *dto.MetricFamily) float64 {
	var total float64
	for _, metric := range fam.GetMetric() {
		switch {
		case metric.GetCounter() != nil:
			total += metric.GetCounter().GetValue()
		case metric.GetGauge() != nil:
			total += metric.GetGauge().GetValue()
		}
	}
	return total
}
