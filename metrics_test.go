package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// seedPipelineFixture stores four candidates: one active in cv_review, one
// active in phone_screening, one hired, one rejected.
func seedPipelineFixture(t *testing.T, store *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	// Active in cv_review for 24h
	inReview := fixtureState("cand-review", "cv_review", now.Add(-24*time.Hour))
	require.NoError(t, store.PutState(ctx, inReview))

	// Active in phone_screening; spent 30h in cv_review first
	inScreening := fixtureState("cand-screening", "cv_review", now.Add(-54*time.Hour))
	closeEntry(inScreening.History[0], now.Add(-24*time.Hour), DecisionPassed, 75)
	inScreening.History = append(inScreening.History, &HistoryEntry{
		PhaseID: "phone_screening", PhaseName: "Phone Screening",
		EnteredAt: now.Add(-24 * time.Hour), Decision: DecisionPending,
	})
	inScreening.CurrentPhase = "phone_screening"
	inScreening.PreviousPhase = "cv_review"
	require.NoError(t, store.PutState(ctx, inScreening))

	// Hired: full run finished 10 days after start
	started := now.Add(-12 * 24 * time.Hour)
	completed := started.Add(10 * 24 * time.Hour)
	hired := fixtureState("cand-hired", "cv_review", started)
	closeEntry(hired.History[0], started.Add(90*time.Hour), DecisionPassed, 85)
	hired.History = append(hired.History, &HistoryEntry{
		PhaseID: "phone_screening", PhaseName: "Phone Screening",
		EnteredAt: started.Add(90 * time.Hour), Decision: DecisionPending,
	})
	closeEntry(hired.History[1], started.Add(120*time.Hour), DecisionPassed, 90)
	hired.History = append(hired.History, &HistoryEntry{
		PhaseID: "final_decision", PhaseName: "Final Decision",
		EnteredAt: started.Add(120 * time.Hour), Decision: DecisionPending,
	})
	closeEntry(hired.History[2], completed, DecisionPassed, 95)
	hired.CurrentPhase = "final_decision"
	hired.Status = StatusCompleted
	hired.CompletedAt = &completed
	require.NoError(t, store.PutState(ctx, hired))

	// Rejected after 18h in cv_review
	rejected := fixtureState("cand-rejected", "cv_review", now.Add(-36*time.Hour))
	closeEntry(rejected.History[0], now.Add(-18*time.Hour), DecisionFailed, 40)
	rejected.Status = StatusRejected
	rejectedAt := now.Add(-18 * time.Hour)
	rejected.CompletedAt = &rejectedAt
	require.NoError(t, store.PutState(ctx, rejected))
}

func newMetricsEngine(t *testing.T) (*Engine, *MemoryStore) {
	t.Helper()
	registry := NewRegistry()
	registry.Register(testTemplate(t))
	store := NewMemoryStore()
	engine, err := NewEngine(EngineOptions{Registry: registry, Store: store})
	require.NoError(t, err)
	return engine, store
}

func TestGetMetricsCandidatesByPhase(t *testing.T) {
	engine, store := newMetricsEngine(t)
	defer engine.Close()
	seedPipelineFixture(t, store)

	metrics, err := engine.GetMetrics(context.Background(), "swe-hiring")
	require.NoError(t, err)

	// Only active candidates are counted per phase
	require.Equal(t, map[string]int{
		"cv_review":       1,
		"phone_screening": 1,
	}, metrics.CandidatesByPhase)
}

func TestGetMetricsAverageTimePerPhase(t *testing.T) {
	engine, store := newMetricsEngine(t)
	defer engine.Close()
	seedPipelineFixture(t, store)

	metrics, err := engine.GetMetrics(context.Background(), "swe-hiring")
	require.NoError(t, err)

	// cv_review closed entries: 30h, 90h, 18h -> mean 46h
	require.InDelta(t, 46, metrics.AverageTimePerPhase["cv_review"], 0.1)
	// phone_screening closed entries: 30h (hired only)
	require.InDelta(t, 30, metrics.AverageTimePerPhase["phone_screening"], 0.1)
	// no closed technical_interview entries
	require.NotContains(t, metrics.AverageTimePerPhase, "technical_interview")
}

func TestGetMetricsConversionRates(t *testing.T) {
	engine, store := newMetricsEngine(t)
	defer engine.Close()
	seedPipelineFixture(t, store)

	metrics, err := engine.GetMetrics(context.Background(), "swe-hiring")
	require.NoError(t, err)

	// 4 candidates reached cv_review, 2 ever reached phone_screening
	require.InDelta(t, 50, metrics.ConversionRates["cv_review->phone_screening"], 0.1)
	// Nobody reached technical_interview
	require.InDelta(t, 0, metrics.ConversionRates["phone_screening->technical_interview"], 0.1)
}

func TestGetMetricsTimeToCompletion(t *testing.T) {
	engine, store := newMetricsEngine(t)
	defer engine.Close()
	seedPipelineFixture(t, store)

	metrics, err := engine.GetMetrics(context.Background(), "swe-hiring")
	require.NoError(t, err)

	// Only the hired candidate counts; the rejected one does not
	require.Equal(t, 1, metrics.TimeToCompletion.Count)
	require.InDelta(t, 10, metrics.TimeToCompletion.AverageDays, 0.01)
	require.InDelta(t, 10, metrics.TimeToCompletion.MedianDays, 0.01)
	require.InDelta(t, 10, metrics.TimeToCompletion.P90Days, 0.01)
}

func TestGetMetricsBottlenecks(t *testing.T) {
	engine, store := newMetricsEngine(t)
	defer engine.Close()
	ctx := context.Background()
	now := time.Now()

	// Two candidates spent far over the 48h phone_screening SLA
	for _, tc := range []struct {
		id    string
		hours float64
	}{
		{"cand-slow-1", 100},
		{"cand-slow-2", 120},
	} {
		state := fixtureState(tc.id, "cv_review", now.Add(-time.Duration(tc.hours+10)*time.Hour))
		closeEntry(state.History[0], state.StartedAt.Add(time.Hour), DecisionPassed, 80)
		state.History = append(state.History, &HistoryEntry{
			PhaseID: "phone_screening", PhaseName: "Phone Screening",
			EnteredAt: state.StartedAt.Add(time.Hour), Decision: DecisionPending,
		})
		closeEntry(state.History[1], state.StartedAt.Add(time.Duration(tc.hours+1)*time.Hour), DecisionPassed, 80)
		state.History = append(state.History, &HistoryEntry{
			PhaseID: "technical_interview", PhaseName: "Technical Interview",
			EnteredAt: state.StartedAt.Add(time.Duration(tc.hours+1) * time.Hour), Decision: DecisionPending,
		})
		state.CurrentPhase = "technical_interview"
		require.NoError(t, store.PutState(ctx, state))
	}

	metrics, err := engine.GetMetrics(ctx, "swe-hiring")
	require.NoError(t, err)
	require.Len(t, metrics.Bottlenecks, 1)

	bottleneck := metrics.Bottlenecks[0]
	require.Equal(t, "phone_screening", bottleneck.PhaseID)
	// 110h average > 1.5 * 48h SLA
	require.Equal(t, "high", bottleneck.RiskLevel)
	require.InDelta(t, 110, bottleneck.AverageHours, 0.1)
	require.NotEmpty(t, bottleneck.Suggestions)
}

func TestGetMetricsSLACompliance(t *testing.T) {
	engine, store := newMetricsEngine(t)
	defer engine.Close()
	seedPipelineFixture(t, store)

	metrics, err := engine.GetMetrics(context.Background(), "swe-hiring")
	require.NoError(t, err)

	// cv_review (72h SLA): 30h and 18h met, 90h missed -> 2/3
	require.InDelta(t, 66.67, metrics.SLACompliance.PerPhase["cv_review"], 0.1)
	// phone_screening (48h SLA): 30h met -> 1/1
	require.InDelta(t, 100, metrics.SLACompliance.PerPhase["phone_screening"], 0.1)
	// overall: 3 of 4 closed entries with an SLA met it
	require.InDelta(t, 75, metrics.SLACompliance.Overall, 0.1)
}

func TestGetMetricsUnknownTemplate(t *testing.T) {
	engine, _ := newMetricsEngine(t)
	defer engine.Close()

	_, err := engine.GetMetrics(context.Background(), "nope")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

func TestCheckSLAs(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testTemplate(t))
	store := NewMemoryStore()
	publisher := &capturePublisher{}
	engine, err := NewEngine(EngineOptions{Registry: registry, Store: store, Publisher: publisher})
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	// 60h in cv_review: past 80% of the 72h SLA
	overdue := fixtureState("cand-overdue", "cv_review", now.Add(-60*time.Hour))
	require.NoError(t, store.PutState(ctx, overdue))

	// 10h in cv_review: comfortably within SLA
	fresh := fixtureState("cand-fresh", "cv_review", now.Add(-10*time.Hour))
	require.NoError(t, store.PutState(ctx, fresh))

	warnings, err := engine.CheckSLAs(ctx, "swe-hiring")
	require.NoError(t, err)
	require.Equal(t, 1, warnings)

	engine.Close()
	events := publisher.EventsOfType(EventSLAWarning)
	require.Len(t, events, 1)
	require.Equal(t, "cand-overdue", events[0].CandidateID)
	require.Equal(t, "cv_review", events[0].PhaseID)
}
