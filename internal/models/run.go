package models

import "time"

// RunSummary records the outcome of one pipeline run. Status follows HTTP semantics:
// 200 when updates were published, 500 when the run failed, 409 when it was rejected
// because another run was active.
type RunSummary struct {
	ID         string    `json:"id"`
	Status     int       `json:"status"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Items      int       `json:"items"`
	Pairs      int       `json:"pairs"`
	Groups     int       `json:"groups"`
	Assigned   int       `json:"assigned"`
	Threshold  float64   `json:"threshold"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Succeeded reports whether the run published its updates.
func (r *RunSummary) Succeeded() bool {
	return r.Status >= 200 && r.Status < 300
}

// OutboxMessage is a serialized publish envelope waiting to be relayed.
type OutboxMessage struct {
	ID          int64      `json:"id"`
	MessageType string     `json:"message_type"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}
