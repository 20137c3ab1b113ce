package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_InstancesAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.TrainingStarted()
	a.ObserveRound("sine", "greedy", time.Millisecond, 0.5)

	sa, err := a.Summary()
	require.NoError(t, err)
	sb, err := b.Summary()
	require.NoError(t, err)

	assert.Equal(t, float64(1), sa.Rounds)
	assert.Equal(t, float64(0), sb.Rounds)
	assert.Equal(t, float64(0), sb.ActiveTrainings)
}

func TestMetrics_SummaryAccumulatesAcrossLabels(t *testing.T) {
	m := NewMetrics()

	m.TrainingStarted()
	m.ObserveRound("sine", "greedy", 10*time.Millisecond, 0.5)
	m.ObserveRound("sine", "greedy", 5*time.Millisecond, 0.25)
	m.ObserveRound("ode", "gradient", 20*time.Millisecond, 0.1)
	m.RecordEvaluations("sine", 200)
	m.RecordEvaluations("ode", 100)
	m.RecordDegenerate("sine")
	m.TrainingFinished()

	s, err := m.Summary()
	require.NoError(t, err)

	assert.Equal(t, float64(3), s.Rounds)
	assert.Equal(t, float64(300), s.Evaluations)
	assert.Equal(t, float64(1), s.Trainings)
	assert.Equal(t, float64(0), s.ActiveTrainings)
	assert.Equal(t, float64(1), s.Degenerate)
	assert.False(t, s.Generated.IsZero())
}

func TestMetrics_ActiveTrainingsGauge(t *testing.T) {
	m := NewMetrics()

	m.TrainingStarted()
	m.TrainingStarted()
	s, err := m.Summary()
	require.NoError(t, err)
	assert.Equal(t, float64(2), s.ActiveTrainings)

	m.TrainingFinished()
	s, err = m.Summary()
	require.NoError(t, err)
	assert.Equal(t, float64(1), s.ActiveTrainings)
}

func TestMetrics_HandlerExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveRound("sine", "greedy", 10*time.Millisecond, 0.5)
	m.RecordEvaluations("sine", 50)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "axonfit_rounds_total")
	assert.Contains(t, body, "axonfit_objective_evaluations_total")
	assert.Contains(t, body, "axonfit_round_duration_seconds")
	assert.Contains(t, body, `function="sine"`)
}

func TestMetrics_SummaryHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveRound("sine", "greedy", time.Millisecond, 0.5)

	rec := httptest.NewRecorder()
	m.SummaryHandler(rec, httptest.NewRequest("GET", "/api/v1/summary", nil))

	require.Equal(t, 200, rec.Code)
	var s MetricSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, float64(1), s.Rounds)
	assert.False(t, s.Generated.IsZero())
}
