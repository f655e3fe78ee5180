package model

import "time"

// DateLayout is the calendar-day key format of a check-in.
const DateLayout = "2006-01-02"

type CheckIn struct {
	ID            int64     `json:"id"`
	Date          string    `json:"date"`
	SleepHours    float64   `json:"sleep_hours"`
	SleepQuality  int       `json:"sleep_quality"`
	Fatigue       int       `json:"fatigue"`
	Soreness      int       `json:"soreness"`
	RecoveryScore int       `json:"recovery_score"`
	Notes         *string   `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CheckInPatch holds the mutable fields of a check-in. Nil fields are left
// unchanged by an update.
type CheckInPatch struct {
	SleepHours    *float64 `json:"sleep_hours,omitempty"`
	SleepQuality  *int     `json:"sleep_quality,omitempty"`
	Fatigue       *int     `json:"fatigue,omitempty"`
	Soreness      *int     `json:"soreness,omitempty"`
	RecoveryScore *int     `json:"-"`
	Notes         *string  `json:"notes,omitempty"`
}
