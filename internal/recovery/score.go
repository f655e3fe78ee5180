// Package recovery derives recovery scores from daily check-ins and
// aggregates them into dashboard, trend, and history views.
package recovery

import "math"

const (
	// MinMetric and MaxMetric bound the subjective 1-10 inputs.
	MinMetric = 1
	MaxMetric = 10

	MinScore = 0
	MaxScore = 100

	sleepWeight    = 0.30
	fatigueWeight  = 0.35
	sorenessWeight = 0.35
)

// ComputeScore returns the recovery score in [0,100] for the given metrics.
// Inputs outside [1,10] are clamped, never rejected. Fatigue and soreness
// count inversely: 10 is the worst value.
func ComputeScore(sleepQuality, fatigue, soreness int) int {
	q := ClampMetric(sleepQuality)
	f := ClampMetric(fatigue)
	s := ClampMetric(soreness)

	sleepComponent := float64(q) * sleepWeight
	fatigueComponent := float64(MaxMetric-f) * fatigueWeight
	sorenessComponent := float64(MaxMetric-s) * sorenessWeight

	raw := (sleepComponent + fatigueComponent + sorenessComponent) * 10
	return clampScore(int(math.Round(raw)))
}

// ClampMetric bounds a metric to [1,10].
func ClampMetric(v int) int {
	return clampInt(v, MinMetric, MaxMetric)
}

func clampScore(v int) int {
	return clampInt(v, MinScore, MaxScore)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Status is the display band a score falls into.
type Status struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var (
	StatusOptimal  = Status{Label: "Optimal", Color: "emerald"}
	StatusGood     = Status{Label: "Good", Color: "gold"}
	StatusModerate = Status{Label: "Moderate", Color: "amber"}
	StatusLow      = Status{Label: "Low", Color: "ruby"}
)

// Classify maps a score to its band. Lower bounds are inclusive.
func Classify(score int) Status {
	score = clampScore(score)
	switch {
	case score >= 80:
		return StatusOptimal
	case score >= 60:
		return StatusGood
	case score >= 40:
		return StatusModerate
	default:
		return StatusLow
	}
}
