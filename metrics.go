package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// DefaultSLAHours is assumed for bottleneck detection when a phase defines
// no SLA of its own.
const DefaultSLAHours = 48.0

// Bottleneck reports a phase whose observed average duration exceeds its SLA.
type Bottleneck struct {
	PhaseID      string   `json:"phase_id"`
	PhaseName    string   `json:"phase_name"`
	AverageHours float64  `json:"average_hours"`
	SLAHours     float64  `json:"sla_hours"`
	RiskLevel    string   `json:"risk_level"`
	Suggestions  []string `json:"suggestions"`
}

// SLACompliance aggregates the share of closed history entries that met
// their phase's SLA.
type SLACompliance struct {
	PerPhase map[string]float64 `json:"per_phase"`
	Overall  float64            `json:"overall"`
}

// CompletionStats summarizes time-to-completion in days over completed
// workflows.
type CompletionStats struct {
	Count       int     `json:"count"`
	AverageDays float64 `json:"average_days"`
	MedianDays  float64 `json:"median_days"`
	P90Days     float64 `json:"p90_days"`
}

// Metrics is the aggregate analytics view over all candidate states for a
// template.
type Metrics struct {
	TemplateID          string             `json:"template_id"`
	CandidatesByPhase   map[string]int     `json:"candidates_by_phase"`
	AverageTimePerPhase map[string]float64 `json:"average_time_per_phase"`
	ConversionRates     map[string]float64 `json:"conversion_rates"`
	Bottlenecks         []*Bottleneck      `json:"bottlenecks"`
	SLACompliance       SLACompliance      `json:"sla_compliance"`
	TimeToCompletion    CompletionStats    `json:"time_to_completion"`
}

// GetMetrics computes pipeline analytics across all candidate states
// referencing the template, regardless of status.
func (e *Engine) GetMetrics(ctx context.Context, templateID string) (*Metrics, error) {
	template, err := e.registry.Get(templateID)
	if err != nil {
		return nil, err
	}
	states, err := e.store.ListStatesByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	metrics := &Metrics{
		TemplateID:          templateID,
		CandidatesByPhase:   map[string]int{},
		AverageTimePerPhase: map[string]float64{},
		ConversionRates:     map[string]float64{},
		Bottlenecks:         []*Bottleneck{},
		SLACompliance:       SLACompliance{PerPhase: map[string]float64{}},
	}

	// Active candidate counts per phase
	for _, state := range states {
		if state.Status == StatusActive {
			metrics.CandidatesByPhase[state.CurrentPhase]++
		}
	}

	// Average hours per phase over closed history entries
	phaseHours := map[string][]float64{}
	for _, state := range states {
		for _, entry := range state.History {
			if entry.Open() {
				continue
			}
			hours := entry.ExitedAt.Sub(entry.EnteredAt).Hours()
			phaseHours[entry.PhaseID] = append(phaseHours[entry.PhaseID], hours)
		}
	}
	for phaseID, hours := range phaseHours {
		metrics.AverageTimePerPhase[phaseID] = mean(hours)
	}

	// Conversion rates between adjacent phases: the cumulative share of
	// candidates that ever reached the later phase, out of those that ever
	// reached the earlier one.
	phases := template.Phases()
	for i := 0; i+1 < len(phases); i++ {
		from, to := phases[i], phases[i+1]
		var reachedFrom, reachedTo int
		for _, state := range states {
			if state.PhaseEverReached(from.ID) {
				reachedFrom++
				if state.PhaseEverReached(to.ID) {
					reachedTo++
				}
			}
		}
		key := fmt.Sprintf("%s->%s", from.ID, to.ID)
		if reachedFrom > 0 {
			metrics.ConversionRates[key] = float64(reachedTo) / float64(reachedFrom) * 100
		} else {
			metrics.ConversionRates[key] = 0
		}
	}

	// Bottlenecks: phases averaging over their SLA
	for _, phase := range phases {
		avg, ok := metrics.AverageTimePerPhase[phase.ID]
		if !ok {
			continue
		}
		sla := phase.SLAHours
		if sla <= 0 {
			sla = DefaultSLAHours
		}
		if avg <= sla {
			continue
		}
		risk := "medium"
		if avg > 1.5*sla {
			risk = "high"
		}
		metrics.Bottlenecks = append(metrics.Bottlenecks, &Bottleneck{
			PhaseID:      phase.ID,
			PhaseName:    phase.Name,
			AverageHours: avg,
			SLAHours:     sla,
			RiskLevel:    risk,
			Suggestions: []string{
				"add interviewer capacity for this phase",
				"review scheduling lead times",
				"consider tightening entry criteria for the preceding phase",
			},
		})
	}

	// SLA compliance over closed entries, per phase and overall
	var metTotal, closedTotal int
	for _, phase := range phases {
		if !phase.HasSLA() {
			continue
		}
		var met, closed int
		for _, hours := range phaseHours[phase.ID] {
			closed++
			if hours <= phase.SLAHours {
				met++
			}
		}
		if closed > 0 {
			metrics.SLACompliance.PerPhase[phase.ID] = float64(met) / float64(closed) * 100
		}
		metTotal += met
		closedTotal += closed
	}
	if closedTotal > 0 {
		metrics.SLACompliance.Overall = float64(metTotal) / float64(closedTotal) * 100
	}

	// Time to completion over completed workflows only
	var completionDays []float64
	for _, state := range states {
		if state.Status != StatusCompleted || state.CompletedAt == nil {
			continue
		}
		days := state.CompletedAt.Sub(state.StartedAt).Hours() / 24
		completionDays = append(completionDays, days)
	}
	metrics.TimeToCompletion = CompletionStats{
		Count:       len(completionDays),
		AverageDays: mean(completionDays),
		MedianDays:  percentile(completionDays, 0.5),
		P90Days:     percentile(completionDays, 0.9),
	}

	return metrics, nil
}

// CheckSLAs sweeps active states and publishes sla_warning events for
// candidates past 80% of their phase SLA, plus bottleneck_detected events
// from current metrics. Returns the number of warnings emitted.
func (e *Engine) CheckSLAs(ctx context.Context, templateID string) (int, error) {
	template, err := e.registry.Get(templateID)
	if err != nil {
		return 0, err
	}
	states, err := e.store.ListStatesByTemplate(ctx, templateID)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	warnings := 0
	for _, state := range states {
		if state.Status != StatusActive {
			continue
		}
		phase, ok := template.Phase(state.CurrentPhase)
		if !ok || !phase.HasSLA() {
			continue
		}
		open := state.OpenEntry()
		if open == nil {
			continue
		}
		hoursIn := now.Sub(open.EnteredAt).Hours()
		if hoursIn <= 0.8*phase.SLAHours {
			continue
		}
		warnings++
		event := NewWorkflowEvent(EventSLAWarning, "sla-sweep")
		event.CandidateID = state.CandidateID
		event.WorkflowID = state.ID
		event.PhaseID = phase.ID
		event.Payload = map[string]any{
			"hours_in_phase": hoursIn,
			"sla_hours":      phase.SLAHours,
		}
		e.dispatcher.enqueue(sideEffect{event: event})
	}

	metrics, err := e.GetMetrics(ctx, templateID)
	if err != nil {
		return warnings, err
	}
	for _, bottleneck := range metrics.Bottlenecks {
		event := NewWorkflowEvent(EventBottleneckDetected, "sla-sweep")
		event.WorkflowID = templateID
		event.PhaseID = bottleneck.PhaseID
		event.Payload = map[string]any{
			"average_hours": bottleneck.AverageHours,
			"sla_hours":     bottleneck.SLAHours,
			"risk_level":    bottleneck.RiskLevel,
		}
		e.dispatcher.enqueue(sideEffect{event: event})
	}
	return warnings, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile returns the p-th percentile using the nearest-rank method.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
