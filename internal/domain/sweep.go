package domain

import "time"

// SweepReport summarises one due date sweep run
type SweepReport struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Evaluated     int           `json:"evaluated"`
	Reminded      int           `json:"reminded"`
	MarkedOverdue int           `json:"marked_overdue"`
	Failed        int           `json:"failed"`
}
