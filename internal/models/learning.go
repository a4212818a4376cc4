package models

import "time"

// PlatformStat aggregates extraction outcomes for one platform.
type PlatformStat struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// SuccessRate is successes over attempts in [0,100].
func (s PlatformStat) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return 100 * float64(s.Successes) / float64(s.Attempts)
}

// LearningRecord is the structured feedback an extraction run leaves for
// the next planner invocation: per-platform success rates, per-strategy
// hit counts, and common failure modes.
type LearningRecord struct {
	ID            string                       `json:"id" db:"id"`
	Timestamp     time.Time                    `json:"timestamp" db:"timestamp"`
	PlatformStats map[PlatformTag]PlatformStat `json:"platform_stats"`
	StrategyHits  map[string]int               `json:"strategy_hits"`
	FailureModes  map[string]int               `json:"failure_modes"`
}

// PlatformBias flattens the record into the planner's bias map.
func (r *LearningRecord) PlatformBias() map[PlatformTag]float64 {
	out := make(map[PlatformTag]float64, len(r.PlatformStats))
	for tag, s := range r.PlatformStats {
		out[tag] = s.SuccessRate()
	}
	return out
}
