package pipeline

import (
	"context"
	"strings"
	"time"
)

// Card flags surfaced for client-side highlighting.
const (
	FlagSLAWarning    = "sla_warning"
	FlagUrgent        = "urgent"
	FlagHighPotential = "high_potential"
)

// NextAction describes the expected next operational step for a card.
type NextAction struct {
	Action   string     `json:"action"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Assignee string     `json:"assignee,omitempty"`
}

// Card is the board projection of one active candidate.
type Card struct {
	CandidateID    string      `json:"candidate_id"`
	WorkflowID     string      `json:"workflow_id"`
	PositionTitle  string      `json:"position_title,omitempty"`
	Priority       Priority    `json:"priority"`
	AIScore        float64     `json:"ai_score"`
	DaysInPhase    int         `json:"days_in_phase"`
	Flags          []string    `json:"flags,omitempty"`
	NextAction     *NextAction `json:"next_action,omitempty"`
	EnteredPhaseAt time.Time   `json:"entered_phase_at"`
}

// Column is one board column, corresponding to an active template phase.
type Column struct {
	PhaseID         string    `json:"phase_id"`
	PhaseName       string    `json:"phase_name"`
	Order           int       `json:"order"`
	Kind            PhaseKind `json:"kind"`
	SLAWarningHours float64   `json:"sla_warning_hours,omitempty"`
	Cards           []*Card   `json:"cards"`
}

// nextActionByPhase maps well-known phase ids to their operational step.
// Phases without an entry fall back to a kind-based default.
var nextActionByPhase = map[string]string{
	"cv_review":           "review and decide",
	"phone_screening":     "schedule phone screening",
	"technical_interview": "schedule technical interview",
	"cultural_fit":        "schedule cultural fit interview",
	"final_decision":      "prepare offer decision",
}

var nextActionByKind = map[PhaseKind]string{
	PhaseKindScreening: "review candidate materials",
	PhaseKindTechnical: "schedule technical interview",
	PhaseKindCultural:  "schedule cultural interview",
	PhaseKindFinal:     "make final decision",
	PhaseKindCustom:    "advance candidate",
}

// GetBoard builds the read-optimized column/card projection for a template:
// one ordered column per active phase, one card per active candidate whose
// current phase matches the column.
func (e *Engine) GetBoard(ctx context.Context, templateID string) ([]*Column, error) {
	template, err := e.registry.Get(templateID)
	if err != nil {
		return nil, err
	}
	states, err := e.store.ListStatesByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	columns := make([]*Column, 0, len(template.Phases()))
	byPhase := make(map[string]*Column)
	for _, phase := range template.ActivePhases() {
		column := &Column{
			PhaseID:   phase.ID,
			PhaseName: phase.Name,
			Order:     phase.Order,
			Kind:      phase.Kind,
			Cards:     []*Card{},
		}
		if phase.HasSLA() {
			column.SLAWarningHours = 0.8 * phase.SLAHours
		}
		columns = append(columns, column)
		byPhase[phase.ID] = column
	}

	for _, state := range states {
		if state.Status != StatusActive {
			continue
		}
		column, ok := byPhase[state.CurrentPhase]
		if !ok {
			continue
		}
		phase, _ := template.Phase(state.CurrentPhase)
		column.Cards = append(column.Cards, e.buildCard(state, phase, now))
	}
	return columns, nil
}

func (e *Engine) buildCard(state *CandidateState, phase *Phase, now time.Time) *Card {
	open := state.OpenEntry()
	card := &Card{
		CandidateID:   state.CandidateID,
		WorkflowID:    state.ID,
		PositionTitle: state.Metadata.PositionTitle,
		Priority:      state.Metadata.Priority,
		AIScore:       aiScore(state),
	}
	if open != nil {
		card.EnteredPhaseAt = open.EnteredAt
		card.DaysInPhase = int(now.Sub(open.EnteredAt).Seconds() / 86400)
	}

	if phase.HasSLA() && float64(card.DaysInPhase*24) > 0.8*phase.SLAHours {
		card.Flags = append(card.Flags, FlagSLAWarning)
	}
	if state.Metadata.Priority == PriorityHigh || state.Metadata.Priority == PriorityUrgent {
		card.Flags = append(card.Flags, FlagUrgent)
	}
	if card.AIScore >= 85 {
		card.Flags = append(card.Flags, FlagHighPotential)
	}

	card.NextAction = nextAction(state, phase, open)
	return card
}

// aiScore is a weighted average of the scores on closed history entries,
// where the i-th chronological score (1-indexed) receives weight i. Recent
// phases therefore dominate. Without any historical scores a heuristic
// baseline is derived from priority and position seniority.
func aiScore(state *CandidateState) float64 {
	var weightedSum, weightTotal float64
	i := 0
	for _, entry := range state.History {
		if entry.Open() || entry.Score == nil {
			continue
		}
		i++
		weightedSum += *entry.Score * float64(i)
		weightTotal += float64(i)
	}
	if weightTotal > 0 {
		return weightedSum / weightTotal
	}
	return fallbackScore(state)
}

// fallbackScore estimates potential from priority and title keywords when no
// interview scores exist yet.
func fallbackScore(state *CandidateState) float64 {
	score := 50.0
	switch state.Metadata.Priority {
	case PriorityUrgent:
		score += 15
	case PriorityHigh:
		score += 10
	case PriorityMedium:
		score += 5
	}
	title := strings.ToLower(state.Metadata.PositionTitle)
	for _, keyword := range []string{"senior", "staff", "principal", "lead"} {
		if strings.Contains(title, keyword) {
			score += 10
			break
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

func nextAction(state *CandidateState, phase *Phase, open *HistoryEntry) *NextAction {
	action, ok := nextActionByPhase[phase.ID]
	if !ok {
		action = nextActionByKind[phase.Kind]
	}
	na := &NextAction{Action: action}

	if open != nil && phase.EstimatedHours > 0 {
		due := open.EnteredAt.Add(time.Duration(phase.EstimatedHours * float64(time.Hour)))
		na.DueDate = &due
	}
	if state.Metadata.AssignedRecruiter != "" {
		na.Assignee = state.Metadata.AssignedRecruiter
	} else if len(phase.InterviewerRoles) > 0 {
		na.Assignee = phase.InterviewerRoles[0]
	}
	return na
}
