package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	TriggerAPI  = "api"
	TriggerCron = "cron"
)

// ExclusionCounts records how many raw records the normalizer dropped, per
// rule. Exclusions are expected operational noise, not errors.
type ExclusionCounts struct {
	MissingID      int `json:"missing_id"`
	MissingTitle   int `json:"missing_title"`
	RoomRental     int `json:"room_rental"`
	MissingTrainer int `json:"missing_trainer"`
}

func (e ExclusionCounts) Total() int {
	return e.MissingID + e.MissingTitle + e.RoomRental + e.MissingTrainer
}

// ReportError is one non-fatal per-entity persistence failure, kept with the
// entity title so an operator can find the offending record upstream.
type ReportError struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// SyncReport aggregates the outcome of one sync pass. A pass that reaches the
// per-entity stage always produces a report; entries in Errors mean partial
// success, not pass failure.
type SyncReport struct {
	RunID           uuid.UUID       `json:"run_id"`
	Trigger         string          `json:"trigger"`
	WindowStart     string          `json:"window_start"`
	WindowEnd       string          `json:"window_end"`
	Fetched         int             `json:"fetched"`
	Created         int             `json:"created"`
	Updated         int             `json:"updated"`
	Skipped         int             `json:"skipped"`
	TrainersCreated int             `json:"trainers_created"`
	Excluded        ExclusionCounts `json:"excluded"`
	Errors          []ReportError   `json:"errors"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

func (r SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
