package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time {
	return &t
}

func TestEvaluateLevels(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state State
		level Level
		label string
	}{
		{"inactive is offline", State{IsActive: false, ConsecutiveFailures: 5}, LevelOffline, "Offline"},
		{"three failures", State{IsActive: true, ConsecutiveFailures: 3}, LevelFailing, "Failing"},
		{"many failures", State{IsActive: true, ConsecutiveFailures: 9}, LevelFailing, "Failing"},
		{"two failures", State{IsActive: true, ConsecutiveFailures: 2}, LevelFailing, "At risk"},
		{"one failure", State{IsActive: true, ConsecutiveFailures: 1, LastSuccessAt: ptr(now.Add(-time.Hour))}, LevelWatch, "Watch"},
		{"stale success", State{IsActive: true, LastSuccessAt: ptr(now.Add(-49 * time.Hour))}, LevelWatch, "Watch"},
		{"recent success", State{IsActive: true, LastSuccessAt: ptr(now.Add(-47 * time.Hour))}, LevelHealthy, "Healthy"},
		{"never scraped", State{IsActive: true}, LevelHealthy, "Healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := Evaluate(tt.state, now)
			assert.Equal(t, tt.level, snapshot.Level)
			assert.Equal(t, tt.label, snapshot.Label)
			assert.NotNil(t, snapshot.NextSteps)
		})
	}
}

func TestApplyFailureThenSuccess(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	state := State{IsActive: true, SuccessRate: 1}

	for i := 1; i <= 3; i++ {
		state = Apply(state, Attempt{Success: false, At: now, Reason: "timeout"})
		assert.Equal(t, i, state.ConsecutiveFailures)
	}

	assert.Equal(t, LevelFailing, Evaluate(state, now).Level)
	assert.Equal(t, "timeout", state.LastFailureReason)

	state = Apply(state, Attempt{Success: true, At: now.Add(time.Minute)})
	assert.Zero(t, state.ConsecutiveFailures)
	require.NotNil(t, state.LastSuccessAt)
	assert.True(t, state.LastSuccessAt.Equal(now.Add(time.Minute)))
	assert.Equal(t, LevelHealthy, Evaluate(state, now.Add(time.Minute)).Level)
}

func TestApplySuccessRate(t *testing.T) {
	state := State{IsActive: true, SuccessRate: 1}
	state = Apply(state, Attempt{Success: false, At: time.Now()})
	assert.InDelta(t, 0.8, state.SuccessRate, 1e-9)
	state = Apply(state, Attempt{Success: true, At: time.Now()})
	assert.InDelta(t, 0.84, state.SuccessRate, 1e-9)
}

func TestApplyResponseTime(t *testing.T) {
	state := Apply(State{IsActive: true}, Attempt{Success: true, At: time.Now(), ResponseTime: time.Second})
	assert.Equal(t, time.Second, state.AvgResponseTime, "first response time seeds the average")
	state = Apply(state, Attempt{Success: true, At: time.Now(), ResponseTime: 2 * time.Second})
	assert.InDelta(t, float64(1200*time.Millisecond), float64(state.AvgResponseTime), float64(time.Millisecond))
}

func TestNextInterval(t *testing.T) {
	base := time.Hour

	tests := []struct {
		state    State
		expected time.Duration
	}{
		{State{IsActive: false}, 0},
		{State{IsActive: true}, base},
		{State{IsActive: true, ConsecutiveFailures: 1}, base},
		{State{IsActive: true, ConsecutiveFailures: 2}, 2 * base},
		{State{IsActive: true, ConsecutiveFailures: 3}, 4 * base},
		{State{IsActive: true, ConsecutiveFailures: 4}, 8 * base},
		{State{IsActive: true, ConsecutiveFailures: 10}, 8 * base},
		{State{IsActive: true, ConsecutiveFailures: 200}, 8 * base},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NextInterval(tt.state, base),
			"failures=%d active=%v", tt.state.ConsecutiveFailures, tt.state.IsActive)
	}
}
