package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore is a file-based StateStore that persists one JSON document per
// candidate.
type FileStore struct {
	dataDir string
}

// NewFileStore creates a new file-based state store
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".hireflow", "pipeline", "states")
	}

	// Ensure the data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

func (s *FileStore) statePath(candidateID string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s.json", candidateID))
}

// GetState loads a candidate's state from disk
func (s *FileStore) GetState(ctx context.Context, candidateID string) (*CandidateState, error) {
	data, err := os.ReadFile(s.statePath(candidateID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No state recorded for this candidate
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state CandidateState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// PutState saves a candidate's state to disk
func (s *FileStore) PutState(ctx context.Context, state *CandidateState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(s.statePath(state.CandidateID), data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// ListStates returns all candidate states found in the data directory
func (s *FileStore) ListStates(ctx context.Context) ([]*CandidateState, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*CandidateState{}, nil // No states directory yet
		}
		return nil, fmt.Errorf("failed to read states directory: %w", err)
	}

	var states []*CandidateState
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		candidateID := strings.TrimSuffix(entry.Name(), ".json")
		state, err := s.GetState(ctx, candidateID)
		if err != nil {
			// Skip states we can't read
			continue
		}
		if state != nil {
			states = append(states, state)
		}
	}
	sortStates(states)
	return states, nil
}

// ListStatesByTemplate returns all candidate states referencing a template
func (s *FileStore) ListStatesByTemplate(ctx context.Context, templateID string) ([]*CandidateState, error) {
	all, err := s.ListStates(ctx)
	if err != nil {
		return nil, err
	}
	var states []*CandidateState
	for _, state := range all {
		if state.TemplateID == templateID {
			states = append(states, state)
		}
	}
	return states, nil
}
