package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRecordService is an in-memory CandidateRecordService for tests.
type fakeRecordService struct {
	mutex   sync.Mutex
	records map[string]*CandidateRecord
	writes  []RecordStatus
}

func newFakeRecordService() *fakeRecordService {
	return &fakeRecordService{records: map[string]*CandidateRecord{}}
}

func (s *fakeRecordService) GetRecord(ctx context.Context, candidateID string) (*CandidateRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	record, ok := s.records[candidateID]
	if !ok {
		return nil, nil
	}
	dup := *record
	return &dup, nil
}

func (s *fakeRecordService) SetStatus(ctx context.Context, candidateID string, status RecordStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.writes = append(s.writes, status)
	return nil
}

func (s *fakeRecordService) Writes() []RecordStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]RecordStatus(nil), s.writes...)
}

func newSyncEngine(t *testing.T) (*Engine, *fakeRecordService, *capturePublisher) {
	t.Helper()
	registry := NewRegistry()
	registry.Register(testTemplate(t))
	records := newFakeRecordService()
	publisher := &capturePublisher{}
	engine, err := NewEngine(EngineOptions{
		Registry:  registry,
		Records:   records,
		Publisher: publisher,
	})
	require.NoError(t, err)
	return engine, records, publisher
}

func TestSyncCreatesMissingState(t *testing.T) {
	engine, records, publisher := newSyncEngine(t)
	ctx := context.Background()

	records.records["cand-1"] = &CandidateRecord{
		CandidateID:         "cand-1",
		Status:              RecordStatusInProcess,
		CompletedInterviews: 1,
	}

	state, err := engine.SyncFromCandidateRecord(ctx, "cand-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	// One interview done: candidate lands on the phase after phone_screening
	require.Equal(t, "technical_interview", state.CurrentPhase)
	require.Equal(t, StatusActive, state.Status)
	require.Len(t, state.History, 1)
	require.NoError(t, state.CheckInvariants())

	engine.Close()
	synced := publisher.EventsOfType(EventCandidateSynced)
	require.Len(t, synced, 1)
	require.Equal(t, "cand-1", synced[0].CandidateID)
}

func TestSyncUnknownCandidateReturnsNil(t *testing.T) {
	engine, _, _ := newSyncEngine(t)
	defer engine.Close()

	state, err := engine.SyncFromCandidateRecord(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestSyncAppendsHistoryOnPhaseChange(t *testing.T) {
	engine, records, _ := newSyncEngine(t)
	defer engine.Close()
	ctx := context.Background()

	startCandidate(t, engine, "cand-1")
	records.records["cand-1"] = &CandidateRecord{
		CandidateID:         "cand-1",
		Status:              RecordStatusInProcess,
		CompletedInterviews: 2,
	}

	state, err := engine.SyncFromCandidateRecord(ctx, "cand-1")
	require.NoError(t, err)
	require.Equal(t, "cultural_fit", state.CurrentPhase)
	require.Len(t, state.History, 2)

	closed := state.History[0]
	require.NotNil(t, closed.ExitedAt)
	require.Equal(t, DecisionSkipped, closed.Decision)
	require.Equal(t, "cultural_fit", closed.NextPhase)
	require.True(t, state.History[1].AutomatedTransition)
	require.NoError(t, state.CheckInvariants())
}

func TestSyncNoChangeIsQuiet(t *testing.T) {
	engine, records, publisher := newSyncEngine(t)
	ctx := context.Background()

	startCandidate(t, engine, "cand-1")
	records.records["cand-1"] = &CandidateRecord{
		CandidateID: "cand-1",
		Status:      RecordStatusNew,
	}

	state, err := engine.SyncFromCandidateRecord(ctx, "cand-1")
	require.NoError(t, err)
	require.Equal(t, "cv_review", state.CurrentPhase)
	require.Len(t, state.History, 1)

	engine.Close()
	require.Empty(t, publisher.EventsOfType(EventCandidateSynced))
}

func TestSyncTerminalRecord(t *testing.T) {
	t.Run("hired", func(t *testing.T) {
		engine, records, _ := newSyncEngine(t)
		defer engine.Close()
		ctx := context.Background()

		startCandidate(t, engine, "cand-1")
		records.records["cand-1"] = &CandidateRecord{
			CandidateID:         "cand-1",
			Status:              RecordStatusHired,
			CompletedInterviews: 4,
		}

		state, err := engine.SyncFromCandidateRecord(ctx, "cand-1")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, state.Status)
		require.NotNil(t, state.CompletedAt)
		require.NoError(t, state.CheckInvariants())
	})

	t.Run("rejected", func(t *testing.T) {
		engine, records, _ := newSyncEngine(t)
		defer engine.Close()
		ctx := context.Background()

		startCandidate(t, engine, "cand-1")
		records.records["cand-1"] = &CandidateRecord{
			CandidateID: "cand-1",
			Status:      RecordStatusRejected,
		}

		state, err := engine.SyncFromCandidateRecord(ctx, "cand-1")
		require.NoError(t, err)
		require.Equal(t, StatusRejected, state.Status)
		require.NotNil(t, state.CompletedAt)
	})
}

func TestMoveForwardsRecordStatus(t *testing.T) {
	engine, records, _ := newSyncEngine(t)
	ctx := context.Background()

	startCandidate(t, engine, "cand-1")
	_, err := engine.MoveCandidate(ctx, MoveRequest{
		CandidateID: "cand-1",
		FromPhase:   "cv_review",
		ToPhase:     "phone_screening",
	})
	require.NoError(t, err)
	engine.Close()

	writes := records.Writes()
	// StartCandidate writes NEW, the move writes IN_PROCESS
	require.Equal(t, []RecordStatus{RecordStatusNew, RecordStatusInProcess}, writes)
}

func TestRecordStatusMapping(t *testing.T) {
	template := testTemplate(t)

	state := &CandidateState{CurrentPhase: "cv_review", Status: StatusActive}
	require.Equal(t, RecordStatusNew, recordStatusFor(template, state))

	state.CurrentPhase = "technical_interview"
	require.Equal(t, RecordStatusInProcess, recordStatusFor(template, state))

	state.Status = StatusCompleted
	require.Equal(t, RecordStatusHired, recordStatusFor(template, state))

	state.Status = StatusRejected
	require.Equal(t, RecordStatusRejected, recordStatusFor(template, state))
}
