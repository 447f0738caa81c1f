package pipeline

import (
	"context"
	"sort"
	"sync"
)

// StateStore defines the candidate state persistence interface. A missing
// candidate is reported as (nil, nil), not as an error.
type StateStore interface {
	// GetState loads the workflow state for a candidate
	GetState(ctx context.Context, candidateID string) (*CandidateState, error)

	// PutState saves a candidate's workflow state
	PutState(ctx context.Context, state *CandidateState) error

	// ListStates returns all candidate states
	ListStates(ctx context.Context) ([]*CandidateState, error)

	// ListStatesByTemplate returns all candidate states referencing a template
	ListStatesByTemplate(ctx context.Context, templateID string) ([]*CandidateState, error)
}

// MemoryStore is an in-memory StateStore implementation keyed by candidate ID.
// States are deep-copied on the way in and out so callers never share memory
// with the store.
type MemoryStore struct {
	mutex  sync.RWMutex
	states map[string]*CandidateState
}

// NewMemoryStore creates an empty in-memory state store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string]*CandidateState{}}
}

func (s *MemoryStore) GetState(ctx context.Context, candidateID string) (*CandidateState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	state, ok := s.states[candidateID]
	if !ok {
		return nil, nil
	}
	return state.Copy(), nil
}

func (s *MemoryStore) PutState(ctx context.Context, state *CandidateState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.states[state.CandidateID] = state.Copy()
	return nil
}

func (s *MemoryStore) ListStates(ctx context.Context) ([]*CandidateState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	states := make([]*CandidateState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state.Copy())
	}
	sortStates(states)
	return states, nil
}

func (s *MemoryStore) ListStatesByTemplate(ctx context.Context, templateID string) ([]*CandidateState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var states []*CandidateState
	for _, state := range s.states {
		if state.TemplateID == templateID {
			states = append(states, state.Copy())
		}
	}
	sortStates(states)
	return states, nil
}

// sortStates orders states by start time, then candidate ID for stability.
func sortStates(states []*CandidateState) {
	sort.Slice(states, func(i, j int) bool {
		if !states[i].StartedAt.Equal(states[j].StartedAt) {
			return states[i].StartedAt.Before(states[j].StartedAt)
		}
		return states[i].CandidateID < states[j].CandidateID
	})
}
