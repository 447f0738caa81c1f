package pipeline

import (
	"context"
	"fmt"
	"time"
)

// SyncFromCandidateRecord reconciles a candidate's workflow state with the
// external candidate record service: it creates the state if absent, and
// otherwise updates phase and status, appending history when the mapped
// phase changed. Returns (nil, nil) when the record service does not know
// the candidate.
func (e *Engine) SyncFromCandidateRecord(ctx context.Context, candidateID string) (*CandidateState, error) {
	if e.records == nil {
		return nil, NewValidationError("no candidate record service configured")
	}
	record, err := e.records.GetRecord(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate record: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	lock := e.candidateLock(candidateID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetState(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate state: %w", err)
	}

	var template *Template
	if state != nil {
		template, err = e.registry.Get(state.TemplateID)
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		template, ok = e.registry.Default()
		if !ok {
			return nil, NewNotFoundError("no default template registered for sync")
		}
	}

	now := time.Now()
	mapped := phaseForRecord(template, record)
	changed := false

	if state == nil {
		state = &CandidateState{
			ID:           NewStateID(),
			CandidateID:  candidateID,
			TemplateID:   template.ID(),
			CurrentPhase: mapped.ID,
			Status:       StatusActive,
			StartedAt:    now,
			UpdatedAt:    now,
			History: []*HistoryEntry{{
				PhaseID:   mapped.ID,
				PhaseName: mapped.Name,
				EnteredAt: now,
				Decision:  DecisionPending,
				Notes:     "created from candidate record sync",
			}},
			Metadata: Metadata{Priority: PriorityMedium},
		}
		changed = true
	} else if state.Status == StatusActive && mapped.ID != state.CurrentPhase {
		open := state.OpenEntry()
		if open != nil {
			open.ExitedAt = &now
			open.Decision = DecisionSkipped
			open.NextPhase = mapped.ID
			open.Notes = "synced from candidate record"
			minutes := now.Sub(open.EnteredAt).Minutes()
			open.DurationMinutes = &minutes
		}
		state.History = append(state.History, &HistoryEntry{
			PhaseID:             mapped.ID,
			PhaseName:           mapped.Name,
			EnteredAt:           now,
			Decision:            DecisionPending,
			AutomatedTransition: true,
			Notes:               "synced from candidate record",
		})
		state.PreviousPhase = state.CurrentPhase
		state.CurrentPhase = mapped.ID
		state.UpdatedAt = now
		changed = true
	}

	// Reconcile terminal record statuses
	if state.Status == StatusActive {
		var terminal WorkflowStatus
		var decision Decision
		switch record.Status {
		case RecordStatusHired:
			terminal, decision = StatusCompleted, DecisionPassed
		case RecordStatusRejected:
			terminal, decision = StatusRejected, DecisionFailed
		}
		if terminal != "" {
			if open := state.OpenEntry(); open != nil {
				open.ExitedAt = &now
				open.Decision = decision
				minutes := now.Sub(open.EnteredAt).Minutes()
				open.DurationMinutes = &minutes
			}
			state.Status = terminal
			state.CompletedAt = &now
			state.UpdatedAt = now
			changed = true
		}
	}

	if !changed {
		return state, nil
	}

	if err := e.store.PutState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save candidate state: %w", err)
	}

	e.logger.Info("candidate synced from record",
		"candidate_id", candidateID,
		"record_status", record.Status,
		"phase", state.CurrentPhase,
		"status", state.Status)

	event := NewWorkflowEvent(EventCandidateSynced, "sync")
	event.CandidateID = candidateID
	event.WorkflowID = state.ID
	event.PhaseID = state.CurrentPhase
	event.Payload = map[string]any{
		"record_status":        string(record.Status),
		"completed_interviews": record.CompletedInterviews,
		"phase":                state.CurrentPhase,
		"status":               string(state.Status),
	}
	e.dispatcher.enqueue(sideEffect{event: event})

	return state.Copy(), nil
}
