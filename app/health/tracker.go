// Package health derives a source's health level from its scrape counters
// and turns it into a scheduling interval.
package health

import (
	"fmt"
	"time"
)

type Level string

const (
	LevelHealthy Level = "healthy"
	LevelWatch   Level = "watch"
	LevelFailing Level = "failing"
	LevelOffline Level = "offline"
)

const (
	StaleAfter       = 48 * time.Hour
	FailingThreshold = 3
	AtRiskThreshold  = 2

	successRateAlpha = 0.2
	maxBackoffFactor = 8
)

type State struct {
	IsActive            bool
	ConsecutiveFailures int
	LastFailureAt       *time.Time
	LastFailureReason   string
	LastSuccessAt       *time.Time
	LastScrapedAt       *time.Time
	SuccessRate         float64
	AvgResponseTime     time.Duration
}

type Snapshot struct {
	Level               Level      `json:"level"`
	Label               string     `json:"label"`
	Summary             string     `json:"summary"`
	Reason              string     `json:"reason,omitempty"`
	NextSteps           []string   `json:"next_steps"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	SuccessRate         float64    `json:"success_rate"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastScrapedAt       *time.Time `json:"last_scraped_at,omitempty"`
}

type Attempt struct {
	Success      bool
	At           time.Time
	ResponseTime time.Duration
	Reason       string
}

// Evaluate computes the health snapshot for state at now. It is never
// stored; callers derive it on every read.
func Evaluate(state State, now time.Time) Snapshot {
	snapshot := Snapshot{
		ConsecutiveFailures: state.ConsecutiveFailures,
		SuccessRate:         state.SuccessRate,
		LastSuccessAt:       state.LastSuccessAt,
		LastScrapedAt:       state.LastScrapedAt,
	}

	switch {
	case !state.IsActive:
		snapshot.Level = LevelOffline
		snapshot.Label = "Offline"
		snapshot.Summary = "Source is deactivated and will not be scraped"
		snapshot.NextSteps = []string{"Re-enable the source once the site is reachable again"}

	case state.ConsecutiveFailures >= FailingThreshold:
		snapshot.Level = LevelFailing
		snapshot.Label = "Failing"
		snapshot.Summary = fmt.Sprintf("%d consecutive scrape failures", state.ConsecutiveFailures)
		snapshot.Reason = state.LastFailureReason
		snapshot.NextSteps = []string{
			"Check whether the site changed its layout or feed location",
			"Review selector overrides for this source",
			"Deactivate the source if it stays broken",
		}

	case state.ConsecutiveFailures == AtRiskThreshold:
		snapshot.Level = LevelFailing
		snapshot.Label = "At risk"
		snapshot.Summary = "Two consecutive scrape failures"
		snapshot.Reason = state.LastFailureReason
		snapshot.NextSteps = []string{"Trigger a manual run and inspect the error log"}

	case state.ConsecutiveFailures == 1:
		snapshot.Level = LevelWatch
		snapshot.Label = "Watch"
		snapshot.Summary = "Last scrape failed"
		snapshot.Reason = state.LastFailureReason
		snapshot.NextSteps = []string{"No action needed unless the next run fails too"}

	case state.LastSuccessAt != nil && now.Sub(*state.LastSuccessAt) > StaleAfter:
		snapshot.Level = LevelWatch
		snapshot.Label = "Watch"
		snapshot.Summary = fmt.Sprintf("No successful scrape since %s", state.LastSuccessAt.Format(time.RFC3339))
		snapshot.NextSteps = []string{"Check whether the source is still publishing"}

	default:
		snapshot.Level = LevelHealthy
		snapshot.Label = "Healthy"
		snapshot.Summary = "Scraping normally"
		snapshot.NextSteps = []string{}
	}

	return snapshot
}

// Apply folds one scrape attempt into state.
func Apply(state State, attempt Attempt) State {
	at := attempt.At
	state.LastScrapedAt = &at

	outcome := 0.0
	if attempt.Success {
		outcome = 1.0
		state.ConsecutiveFailures = 0
		state.LastSuccessAt = &at
	} else {
		state.ConsecutiveFailures++
		state.LastFailureAt = &at
		state.LastFailureReason = attempt.Reason
	}

	state.SuccessRate = successRateAlpha*outcome + (1-successRateAlpha)*state.SuccessRate

	if attempt.ResponseTime > 0 {
		if state.AvgResponseTime == 0 {
			state.AvgResponseTime = attempt.ResponseTime
		} else {
			state.AvgResponseTime = time.Duration(successRateAlpha*float64(attempt.ResponseTime) + (1-successRateAlpha)*float64(state.AvgResponseTime))
		}
	}

	return state
}

// NextInterval returns how long to wait before the next scheduled run.
// Zero means the source must not be scheduled.
func NextInterval(state State, base time.Duration) time.Duration {
	if !state.IsActive {
		return 0
	}
	if state.ConsecutiveFailures < AtRiskThreshold {
		return base
	}

	factor := 1
	for i := 1; i < state.ConsecutiveFailures && factor < maxBackoffFactor; i++ {
		factor *= 2
	}
	return base * time.Duration(factor)
}
