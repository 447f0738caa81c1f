package pipeline

import (
	"context"
	"fmt"

	"github.com/risor-io/risor"
)

// HandleScore evaluates the current phase's auto-advance rules against an
// externally supplied score. Rules run in declared order and only the first
// satisfied rule fires, triggering exactly one automatic move with a passed
// decision. When no rule matches, the score is recorded on the open entry
// and the phase remains open awaiting a manual decision.
func (e *Engine) HandleScore(ctx context.Context, candidateID string, score float64) (*CandidateState, error) {
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
		return state, nil
	}
	template, err := e.registry.Get(state.TemplateID)
	if err != nil {
		return nil, err
	}
	phase, ok := template.Phase(state.CurrentPhase)
	if !ok {
		return nil, NewValidationError("current phase %q is not defined on template %q",
			state.CurrentPhase, template.ID())
	}

	for i, rule := range phase.AutoAdvance {
		matched, err := e.ruleMatches(ctx, rule, score)
		if err != nil {
			e.logger.Error("auto-advance rule evaluation failed",
				"candidate_id", candidateID,
				"phase", phase.ID,
				"rule", i,
				"error", err)
			continue
		}
		if !matched {
			continue
		}
		e.logger.Info("auto-advance rule matched",
			"candidate_id", candidateID,
			"phase", phase.ID,
			"rule", i,
			"score", score,
			"next_phase", rule.NextPhase)
		return e.moveLocked(ctx, MoveRequest{
			CandidateID: candidateID,
			FromPhase:   phase.ID,
			ToPhase:     rule.NextPhase,
			Decision:    DecisionPassed,
			Score:       &score,
			Notes:       fmt.Sprintf("auto-advanced: rule %d (%s) matched with score %.1f", i+1, ruleSummary(rule), score),
			Actor:       "auto-advance",
		}, true)
	}

	// No rule fired; keep the score on the open entry for later review.
	if open := state.OpenEntry(); open != nil {
		open.Score = &score
		if err := e.store.PutState(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to save candidate state: %w", err)
		}
	}
	return state, nil
}

// RequestScore pulls a fresh score for the candidate's current phase from
// the scoring service and runs auto-advance evaluation with it.
func (e *Engine) RequestScore(ctx context.Context, candidateID string) (*CandidateState, error) {
	if e.scores == nil {
		return nil, NewValidationError("no scoring service configured")
	}
	state, err := e.GetState(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	score, err := e.scores.Score(ctx, candidateID, state.CurrentPhase)
	if err != nil {
		return nil, NewExternalSyncError("scoring service request failed", err)
	}
	return e.HandleScore(ctx, candidateID, score)
}

// ruleMatches evaluates one auto-advance rule against a score.
func (e *Engine) ruleMatches(ctx context.Context, rule *AutoAdvanceRule, score float64) (bool, error) {
	switch rule.Condition {
	case ConditionScoreThreshold:
		return rule.Operator.compare(score, rule.Value), nil
	case ConditionExpression:
		result, err := risor.Eval(ctx, rule.Expression, risor.WithGlobals(map[string]any{
			"score": score,
		}))
		if err != nil {
			return false, fmt.Errorf("expression evaluation failed: %w", err)
		}
		return result.IsTruthy(), nil
	}
	return false, fmt.Errorf("unknown rule condition %q", rule.Condition)
}

func ruleSummary(rule *AutoAdvanceRule) string {
	if rule.Condition == ConditionExpression {
		return rule.Expression
	}
	return fmt.Sprintf("score %s %g", rule.Operator, rule.Value)
}
