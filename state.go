package pipeline

import (
	"fmt"
	"time"

	"go.jetify.com/typeid"
)

// NewStateID returns a new prefixed ID for candidate workflow states
func NewStateID() string {
	id, err := typeid.WithPrefix("cand")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// WorkflowStatus represents the lifecycle status of a candidate workflow
type WorkflowStatus string

const (
	StatusActive    WorkflowStatus = "active"
	StatusCompleted WorkflowStatus = "completed"
	StatusRejected  WorkflowStatus = "rejected"
	StatusWithdrawn WorkflowStatus = "withdrawn"
	StatusOnHold    WorkflowStatus = "on_hold"
)

// Terminal reports whether the status is a terminal outcome.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Decision records the outcome of a phase.
type Decision string

const (
	DecisionPassed  Decision = "passed"
	DecisionFailed  Decision = "failed"
	DecisionPending Decision = "pending"
	DecisionSkipped Decision = "skipped"
)

// Priority ranks a candidate's position in the pipeline.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// HistoryEntry is one audit-trail record of a candidate entering a phase.
// This struct is designed to be fully JSON serializable.
type HistoryEntry struct {
	PhaseID             string     `json:"phase_id"`
	PhaseName           string     `json:"phase_name"`
	EnteredAt           time.Time  `json:"entered_at"`
	ExitedAt            *time.Time `json:"exited_at,omitempty"`
	Decision            Decision   `json:"decision"`
	Score               *float64   `json:"score,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	InterviewerID       string     `json:"interviewer_id,omitempty"`
	DurationMinutes     *float64   `json:"duration_minutes,omitempty"`
	AutomatedTransition bool       `json:"automated_transition"`
	NextPhase           string     `json:"next_phase,omitempty"`
}

// Open reports whether the candidate is still in this phase.
func (h *HistoryEntry) Open() bool {
	return h.ExitedAt == nil
}

// Duration returns the time spent in the phase, using now for open entries.
func (h *HistoryEntry) Duration(now time.Time) time.Duration {
	if h.ExitedAt != nil {
		return h.ExitedAt.Sub(h.EnteredAt)
	}
	return now.Sub(h.EnteredAt)
}

// Copy returns a shallow copy of the history entry
func (h *HistoryEntry) Copy() *HistoryEntry {
	dup := *h
	if h.ExitedAt != nil {
		t := *h.ExitedAt
		dup.ExitedAt = &t
	}
	if h.Score != nil {
		s := *h.Score
		dup.Score = &s
	}
	if h.DurationMinutes != nil {
		m := *h.DurationMinutes
		dup.DurationMinutes = &m
	}
	return &dup
}

// Metadata carries position and assignment context for a candidate workflow.
type Metadata struct {
	PositionID             string            `json:"position_id,omitempty"`
	PositionTitle          string            `json:"position_title,omitempty"`
	Priority               Priority          `json:"priority,omitempty"`
	AssignedRecruiter      string            `json:"assigned_recruiter,omitempty"`
	ExpectedCompletionDate *time.Time        `json:"expected_completion_date,omitempty"`
	Tags                   []string          `json:"tags,omitempty"`
	Custom                 map[string]string `json:"custom,omitempty"`
}

// CandidateState tracks one candidate's position and history within a
// workflow template. It is mutated exclusively by the Engine and is never
// hard-deleted; terminal states are retained for audit and analytics.
type CandidateState struct {
	ID            string          `json:"id"`
	CandidateID   string          `json:"candidate_id"`
	TemplateID    string          `json:"template_id"`
	CurrentPhase  string          `json:"current_phase"`
	PreviousPhase string          `json:"previous_phase,omitempty"`
	Status        WorkflowStatus  `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	History       []*HistoryEntry `json:"history"`
	Metadata      Metadata        `json:"metadata"`
}

// OpenEntry returns the single open history entry, or nil if none is open.
func (s *CandidateState) OpenEntry() *HistoryEntry {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Open() {
			return s.History[i]
		}
	}
	return nil
}

// PhaseEverReached reports whether the candidate's history contains the phase.
func (s *CandidateState) PhaseEverReached(phaseID string) bool {
	for _, entry := range s.History {
		if entry.PhaseID == phaseID {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the candidate state
func (s *CandidateState) Copy() *CandidateState {
	dup := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		dup.CompletedAt = &t
	}
	dup.History = make([]*HistoryEntry, len(s.History))
	for i, entry := range s.History {
		dup.History[i] = entry.Copy()
	}
	if s.Metadata.ExpectedCompletionDate != nil {
		t := *s.Metadata.ExpectedCompletionDate
		dup.Metadata.ExpectedCompletionDate = &t
	}
	if s.Metadata.Tags != nil {
		dup.Metadata.Tags = append([]string(nil), s.Metadata.Tags...)
	}
	if s.Metadata.Custom != nil {
		custom := make(map[string]string, len(s.Metadata.Custom))
		for k, v := range s.Metadata.Custom {
			custom[k] = v
		}
		dup.Metadata.Custom = custom
	}
	return &dup
}

// CheckInvariants verifies the structural invariants of the state:
// an active state has exactly one open history entry matching the current
// phase, history is ordered by non-decreasing entry time, and terminal
// states carry a completion timestamp with a closed final entry.
func (s *CandidateState) CheckInvariants() error {
	var open []*HistoryEntry
	for i, entry := range s.History {
		if entry.Open() {
			open = append(open, entry)
		}
		if i > 0 && entry.EnteredAt.Before(s.History[i-1].EnteredAt) {
			return fmt.Errorf("history entry %d entered before its predecessor", i)
		}
	}
	switch s.Status {
	case StatusActive:
		if len(open) != 1 {
			return fmt.Errorf("active state has %d open history entries, want 1", len(open))
		}
		if open[0].PhaseID != s.CurrentPhase {
			return fmt.Errorf("open entry phase %q does not match current phase %q", open[0].PhaseID, s.CurrentPhase)
		}
	case StatusCompleted, StatusRejected:
		if s.CompletedAt == nil {
			return fmt.Errorf("terminal state %q has no completion time", s.Status)
		}
		if len(s.History) == 0 {
			return fmt.Errorf("terminal state has no history")
		}
		last := s.History[len(s.History)-1]
		if last.Open() {
			return fmt.Errorf("terminal state has an open history entry")
		}
		want := DecisionPassed
		if s.Status == StatusRejected {
			want = DecisionFailed
		}
		if last.Decision != want {
			return fmt.Errorf("terminal state %q closed with decision %q", s.Status, last.Decision)
		}
	}
	return nil
}
