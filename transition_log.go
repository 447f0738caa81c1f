package pipeline

import (
	"context"
	"time"
)

// TransitionLogEntry records a single executed phase move for audit.
type TransitionLogEntry struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidate_id"`
	WorkflowID  string    `json:"workflow_id"`
	FromPhase   string    `json:"from_phase"`
	ToPhase     string    `json:"to_phase"`
	Decision    Decision  `json:"decision"`
	Score       *float64  `json:"score,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Automated   bool      `json:"automated"`
	Actor       string    `json:"actor,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TransitionLog defines the transition audit logging interface
type TransitionLog interface {
	// LogTransition logs a completed phase move
	LogTransition(ctx context.Context, entry *TransitionLogEntry) error

	// GetTransitionHistory retrieves the transition log for a candidate
	GetTransitionHistory(ctx context.Context, candidateID string) ([]*TransitionLogEntry, error)
}
