package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hireflow/pipeline/retry"
)

// EngineOptions configures a new Engine.
type EngineOptions struct {
	Registry      *Registry
	Store         StateStore
	Records       CandidateRecordService
	Scores        ScoringService
	Publisher     Publisher
	TransitionLog TransitionLog
	Logger        *slog.Logger
	RetryPolicy   retry.Policy
	QueueSize     int
}

// Engine is the single mutation path for candidate workflow states. All
// reads flow Store -> Projector/Metrics; all writes flow through
// MoveCandidate (directly or via auto-advance and sync) and are serialized
// per candidate.
type Engine struct {
	registry   *Registry
	store      StateStore
	records    CandidateRecordService
	scores     ScoringService
	log        TransitionLog
	logger     *slog.Logger
	dispatcher *Dispatcher

	locksMutex sync.Mutex
	locks      map[string]*sync.Mutex
}

// NewEngine creates a new workflow engine configured with the given options.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("template registry is required")
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Publisher == nil {
		opts.Publisher = NewNullPublisher()
	}
	if opts.TransitionLog == nil {
		opts.TransitionLog = NewNullTransitionLog()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		registry: opts.Registry,
		store:    opts.Store,
		records:  opts.Records,
		scores:   opts.Scores,
		log:      opts.TransitionLog,
		logger:   opts.Logger,
		dispatcher: NewDispatcher(DispatcherOptions{
			Publisher: opts.Publisher,
			Records:   opts.Records,
			Logger:    opts.Logger,
			Policy:    opts.RetryPolicy,
			QueueSize: opts.QueueSize,
		}),
		locks: map[string]*sync.Mutex{},
	}, nil
}

// Close drains pending side effects and stops the dispatcher.
func (e *Engine) Close() {
	e.dispatcher.Close()
}

// candidateLock returns the mutex serializing mutations for one candidate.
// Locks are never reclaimed; the map is bounded by the candidate population.
func (e *Engine) candidateLock(candidateID string) *sync.Mutex {
	e.locksMutex.Lock()
	defer e.locksMutex.Unlock()

	lock, ok := e.locks[candidateID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[candidateID] = lock
	}
	return lock
}

// MoveRequest describes one requested phase move.
type MoveRequest struct {
	CandidateID string   `json:"candidate_id"`
	FromPhase   string   `json:"from_phase"`
	ToPhase     string   `json:"to_phase"`
	Decision    Decision `json:"decision,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Actor       string   `json:"actor,omitempty"`
}

// MoveResult reports one applied move of a bulk operation.
type MoveResult struct {
	CandidateID string          `json:"candidate_id"`
	State       *CandidateState `json:"state"`
}

// MoveError reports one failed move of a bulk operation.
type MoveError struct {
	CandidateID string `json:"candidate_id"`
	Err         error  `json:"-"`
	Message     string `json:"error"`
}

// BulkMoveOutcome carries the parallel results and errors collections of a
// bulk move. Partial failure is expected; applied moves are never rolled
// back because a later item failed.
type BulkMoveOutcome struct {
	Results []*MoveResult `json:"results"`
	Errors  []*MoveError  `json:"errors"`
}

// StartOptions configures a candidate's entry into the pipeline.
type StartOptions struct {
	CandidateID string
	TemplateID  string
	Metadata    Metadata
	Actor       string
}

// StartCandidate creates the workflow state for a candidate entering the
// pipeline, with a single open history entry at the template's first phase.
func (e *Engine) StartCandidate(ctx context.Context, opts StartOptions) (*CandidateState, error) {
	if opts.CandidateID == "" {
		return nil, NewValidationError("candidate id is required")
	}
	template, err := e.registry.Get(opts.TemplateID)
	if err != nil {
		return nil, err
	}

	lock := e.candidateLock(opts.CandidateID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.GetState(ctx, opts.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate state: %w", err)
	}
	if existing != nil {
		return nil, NewValidationError("candidate %q already has a workflow", opts.CandidateID)
	}

	now := time.Now()
	first := template.FirstPhase()
	state := &CandidateState{
		ID:           NewStateID(),
		CandidateID:  opts.CandidateID,
		TemplateID:   template.ID(),
		CurrentPhase: first.ID,
		Status:       StatusActive,
		StartedAt:    now,
		UpdatedAt:    now,
		History: []*HistoryEntry{{
			PhaseID:   first.ID,
			PhaseName: first.Name,
			EnteredAt: now,
			Decision:  DecisionPending,
		}},
		Metadata: opts.Metadata,
	}
	if state.Metadata.Priority == "" {
		state.Metadata.Priority = PriorityMedium
	}

	if err := e.store.PutState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save candidate state: %w", err)
	}

	e.logger.Info("candidate entered pipeline",
		"candidate_id", opts.CandidateID,
		"template_id", template.ID(),
		"phase", first.ID)

	e.dispatcher.enqueue(sideEffect{
		syncStatus: &statusSync{candidateID: opts.CandidateID, status: recordStatusFor(template, state)},
	})
	return state.Copy(), nil
}

// MoveCandidate validates and executes one phase move. The supplied
// from-phase must match the candidate's current phase; a mismatch means the
// caller's view is stale and yields a state conflict rather than a silent
// duplicate transition. Validation and lookup errors abort the move with no
// partial mutation; side-effect failures never do.
func (e *Engine) MoveCandidate(ctx context.Context, req MoveRequest) (*CandidateState, error) {
	lock := e.candidateLock(req.CandidateID)
	lock.Lock()
	defer lock.Unlock()

	return e.moveLocked(ctx, req, false)
}

// moveLocked executes a move while holding the candidate's lock. The
// automated flag marks transitions triggered by the auto-advance evaluator.
func (e *Engine) moveLocked(ctx context.Context, req MoveRequest, automated bool) (*CandidateState, error) {
	state, err := e.store.GetState(ctx, req.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate state: %w", err)
	}
	if state == nil {
		return nil, NewNotFoundError("no workflow found for candidate %q", req.CandidateID)
	}
	template, err := e.registry.Get(state.TemplateID)
	if err != nil {
		return nil, err
	}
	if state.Status != StatusActive {
		return nil, NewValidationError("workflow for candidate %q is %s", req.CandidateID, state.Status)
	}
	if req.FromPhase != state.CurrentPhase {
		return nil, NewStateConflictError("candidate %q is in phase %q, not %q",
			req.CandidateID, state.CurrentPhase, req.FromPhase)
	}
	toPhase, ok := template.Phase(req.ToPhase)
	if !ok {
		return nil, NewValidationError("phase %q is not defined on template %q", req.ToPhase, template.ID())
	}

	decision := req.Decision
	if decision == "" {
		decision = DecisionPassed
	}
	switch decision {
	case DecisionPassed, DecisionFailed, DecisionSkipped:
	default:
		return nil, NewValidationError("invalid decision %q", decision)
	}

	open := state.OpenEntry()
	if open == nil || open.PhaseID != req.FromPhase {
		return nil, NewStateConflictError("candidate %q has no open entry for phase %q",
			req.CandidateID, req.FromPhase)
	}

	now := time.Now()

	// Close the current entry
	open.ExitedAt = &now
	open.Decision = decision
	open.NextPhase = toPhase.ID
	minutes := now.Sub(open.EnteredAt).Minutes()
	open.DurationMinutes = &minutes
	if req.Score != nil {
		open.Score = req.Score
	}
	if req.Notes != "" {
		open.Notes = req.Notes
	}

	// Open the next entry
	next := &HistoryEntry{
		PhaseID:             toPhase.ID,
		PhaseName:           toPhase.Name,
		EnteredAt:           now,
		Decision:            DecisionPending,
		AutomatedTransition: automated,
	}
	state.History = append(state.History, next)

	state.PreviousPhase = req.FromPhase
	state.CurrentPhase = toPhase.ID
	state.UpdatedAt = now

	// Terminal evaluation. A failed decision rejects regardless of the
	// target phase; passing into a final-kind phase completes the workflow.
	// Terminal moves close the just-opened entry so the trail ends closed.
	switch {
	case decision == DecisionFailed:
		state.Status = StatusRejected
		state.CompletedAt = &now
		next.ExitedAt = &now
		next.Decision = DecisionFailed
	case toPhase.Kind == PhaseKindFinal && decision == DecisionPassed:
		state.Status = StatusCompleted
		state.CompletedAt = &now
		next.ExitedAt = &now
		next.Decision = DecisionPassed
	}

	if err := e.store.PutState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save candidate state: %w", err)
	}

	e.logger.Info("candidate moved",
		"candidate_id", req.CandidateID,
		"from_phase", req.FromPhase,
		"to_phase", toPhase.ID,
		"decision", decision,
		"status", state.Status,
		"automated", automated)

	if err := e.log.LogTransition(ctx, &TransitionLogEntry{
		ID:          uuid.NewString(),
		CandidateID: req.CandidateID,
		WorkflowID:  state.ID,
		FromPhase:   req.FromPhase,
		ToPhase:     toPhase.ID,
		Decision:    decision,
		Score:       req.Score,
		Notes:       req.Notes,
		Automated:   automated,
		Actor:       req.Actor,
		Timestamp:   now,
	}); err != nil {
		e.logger.Error("failed to record transition", "candidate_id", req.CandidateID, "error", err)
	}

	e.enqueueMoveEffects(template, state, req, decision, automated, now)

	return state.Copy(), nil
}

// enqueueMoveEffects records the best-effort side effects of a move:
// a status write to the candidate record service and event publication.
func (e *Engine) enqueueMoveEffects(template *Template, state *CandidateState, req MoveRequest, decision Decision, automated bool, now time.Time) {
	actor := req.Actor
	if actor == "" {
		if automated {
			actor = "auto-advance"
		} else {
			actor = "system"
		}
	}

	moved := NewWorkflowEvent(EventCandidateMoved, actor)
	moved.CandidateID = state.CandidateID
	moved.WorkflowID = state.ID
	moved.PhaseID = state.CurrentPhase
	moved.Payload = map[string]any{
		"candidate_id": state.CandidateID,
		"workflow_id":  state.ID,
		"from_phase":   req.FromPhase,
		"to_phase":     state.CurrentPhase,
		"decision":     string(decision),
		"timestamp":    now.Format(time.RFC3339),
	}
	e.dispatcher.enqueue(sideEffect{
		event:      moved,
		syncStatus: &statusSync{candidateID: state.CandidateID, status: recordStatusFor(template, state)},
	})

	if state.Status == StatusCompleted {
		completed := NewWorkflowEvent(EventPhaseCompleted, actor)
		completed.CandidateID = state.CandidateID
		completed.WorkflowID = state.ID
		completed.PhaseID = state.CurrentPhase
		completed.Payload = map[string]any{
			"candidate_id": state.CandidateID,
			"completed_at": now.Format(time.RFC3339),
		}
		e.dispatcher.enqueue(sideEffect{event: completed})
	}
}

// BulkMove processes a list of move requests independently. Each item's
// success or failure is recorded separately; the operation is not
// all-or-nothing and applied moves are not rolled back.
func (e *Engine) BulkMove(ctx context.Context, moves []MoveRequest) *BulkMoveOutcome {
	outcome := &BulkMoveOutcome{
		Results: []*MoveResult{},
		Errors:  []*MoveError{},
	}
	for _, req := range moves {
		state, err := e.MoveCandidate(ctx, req)
		if err != nil {
			outcome.Errors = append(outcome.Errors, &MoveError{
				CandidateID: req.CandidateID,
				Err:         err,
				Message:     err.Error(),
			})
			continue
		}
		outcome.Results = append(outcome.Results, &MoveResult{
			CandidateID: req.CandidateID,
			State:       state,
		})
	}
	return outcome
}

// SetOnHold pauses an active candidate workflow. The open history entry
// stays open so time in phase keeps accruing for analytics.
func (e *Engine) SetOnHold(ctx context.Context, candidateID string) (*CandidateState, error) {
	lock := e.candidateLock(candidateID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetState(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate state: %w", err)
	}
	if state == nil {
		return nil, NewNotFoundError("no workflow found for candidate %q", candidateID)
	}
	if state.Status != StatusActive {
		return nil, NewValidationError("workflow for candidate %q is %s, only active workflows can be held",
			candidateID, state.Status)
	}

	state.Status = StatusOnHold
	state.UpdatedAt = time.Now()
	if err := e.store.PutState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save candidate state: %w", err)
	}
	e.logger.Info("candidate put on hold", "candidate_id", candidateID, "phase", state.CurrentPhase)
	return state.Copy(), nil
}

// Resume reactivates a workflow previously put on hold.
func (e *Engine) Resume(ctx context.Context, candidateID string) (*CandidateState, error) {
	lock := e.candidateLock(candidateID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetState(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate state: %w", err)
	}
	if state == nil {
		return nil, NewNotFoundError("no workflow found for candidate %q", candidateID)
	}
	if state.Status != StatusOnHold {
		return nil, NewValidationError("workflow for candidate %q is %s, not on hold", candidateID, state.Status)
	}

	state.Status = StatusActive
	state.UpdatedAt = time.Now()
	if err := e.store.PutState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save candidate state: %w", err)
	}
	e.logger.Info("candidate resumed", "candidate_id", candidateID, "phase", state.CurrentPhase)
	return state.Copy(), nil
}

// Withdraw ends a workflow because the candidate pulled out. The open entry
// is closed with a skipped decision; the state is retained for analytics.
func (e *Engine) Withdraw(ctx context.Context, candidateID, notes string) (*CandidateState, error) {
	lock := e.candidateLock(candidateID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetState(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate state: %w", err)
	}
	if state == nil {
		return nil, NewNotFoundError("no workflow found for candidate %q", candidateID)
	}
	if state.Status != StatusActive && state.Status != StatusOnHold {
		return nil, NewValidationError("workflow for candidate %q is already %s", candidateID, state.Status)
	}

	now := time.Now()
	if open := state.OpenEntry(); open != nil {
		open.ExitedAt = &now
		open.Decision = DecisionSkipped
		if notes != "" {
			open.Notes = notes
		}
		minutes := now.Sub(open.EnteredAt).Minutes()
		open.DurationMinutes = &minutes
	}
	state.Status = StatusWithdrawn
	state.CompletedAt = &now
	state.UpdatedAt = now
	if err := e.store.PutState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save candidate state: %w", err)
	}
	e.logger.Info("candidate withdrawn", "candidate_id", candidateID, "phase", state.CurrentPhase)
	return state.Copy(), nil
}

// GetState returns a candidate's workflow state.
func (e *Engine) GetState(ctx context.Context, candidateID string) (*CandidateState, error) {
	state, err := e.store.GetState(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate state: %w", err)
	}
	if state == nil {
		return nil, NewNotFoundError("no workflow found for candidate %q", candidateID)
	}
	return state, nil
}
