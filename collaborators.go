package pipeline

import (
	"context"
)

// RecordStatus is the coarse candidate status kept by the external candidate
// record service.
type RecordStatus string

const (
	RecordStatusNew       RecordStatus = "NEW"
	RecordStatusInProcess RecordStatus = "IN_PROCESS"
	RecordStatusHired     RecordStatus = "HIRED"
	RecordStatusRejected  RecordStatus = "REJECTED"
)

// CandidateRecord is the external service's view of a candidate.
type CandidateRecord struct {
	CandidateID         string       `json:"candidate_id"`
	Status              RecordStatus `json:"status"`
	CompletedInterviews int          `json:"completed_interviews"`
}

// CandidateRecordService is the external system of record for candidates.
// The engine forwards phase changes to it on a best-effort basis and pulls
// from it during sync.
type CandidateRecordService interface {
	// GetRecord returns the record for a candidate, or (nil, nil) if unknown
	GetRecord(ctx context.Context, candidateID string) (*CandidateRecord, error)

	// SetStatus writes the mapped status for a candidate
	SetStatus(ctx context.Context, candidateID string, status RecordStatus) error
}

// ScoringService supplies 0-100 scores per candidate and phase. Scores feed
// the auto-advance evaluator and the board's fallback heuristic.
type ScoringService interface {
	Score(ctx context.Context, candidateID, phaseID string) (float64, error)
}

// recordStatusFor maps a candidate's workflow position to the external
// record status: the entry phase maps to NEW, terminal outcomes to HIRED and
// REJECTED, and everything in between to IN_PROCESS.
func recordStatusFor(template *Template, state *CandidateState) RecordStatus {
	switch state.Status {
	case StatusCompleted:
		return RecordStatusHired
	case StatusRejected:
		return RecordStatusRejected
	}
	if state.CurrentPhase == template.FirstPhase().ID {
		return RecordStatusNew
	}
	return RecordStatusInProcess
}

// phaseForRecord maps an external record back to a template phase for sync.
// IN_PROCESS candidates land on the phase after their completed interview
// count, clamped to the final phase.
func phaseForRecord(template *Template, record *CandidateRecord) *Phase {
	phases := template.Phases()
	switch record.Status {
	case RecordStatusNew:
		return phases[0]
	case RecordStatusHired, RecordStatusRejected:
		return phases[len(phases)-1]
	}
	idx := record.CompletedInterviews + 1
	if idx >= len(phases) {
		idx = len(phases) - 1
	}
	return phases[idx]
}
