// Package postgres provides a PostgreSQL-backed state store for the
// pipeline engine. States are stored as JSON documents keyed by candidate,
// which keeps the history append-only semantics in one row write.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/hireflow/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS candidate_workflow_states (
	candidate_id TEXT PRIMARY KEY,
	template_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	state        JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS candidate_workflow_states_template_idx
	ON candidate_workflow_states (template_id);
`

// StateStore is a pipeline.StateStore backed by PostgreSQL.
type StateStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*StateStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	store := &StateStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStateStore wraps an existing database handle and ensures the schema.
func NewStateStore(ctx context.Context, db *sql.DB) (*StateStore, error) {
	store := &StateStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *StateStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *StateStore) Close() error {
	return s.db.Close()
}

func (s *StateStore) GetState(ctx context.Context, candidateID string) (*pipeline.CandidateState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM candidate_workflow_states WHERE candidate_id = $1`,
		candidateID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	var state pipeline.CandidateState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

func (s *StateStore) PutState(ctx context.Context, state *pipeline.CandidateState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO candidate_workflow_states (candidate_id, template_id, status, state, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (candidate_id) DO UPDATE
		SET template_id = EXCLUDED.template_id,
		    status = EXCLUDED.status,
		    state = EXCLUDED.state,
		    updated_at = now()`,
		state.CandidateID, state.TemplateID, string(state.Status), data)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *StateStore) ListStates(ctx context.Context) ([]*pipeline.CandidateState, error) {
	return s.list(ctx,
		`SELECT state FROM candidate_workflow_states ORDER BY updated_at`)
}

func (s *StateStore) ListStatesByTemplate(ctx context.Context, templateID string) ([]*pipeline.CandidateState, error) {
	return s.list(ctx,
		`SELECT state FROM candidate_workflow_states WHERE template_id = $1 ORDER BY updated_at`,
		templateID)
}

func (s *StateStore) list(ctx context.Context, query string, args ...any) ([]*pipeline.CandidateState, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer rows.Close()

	var states []*pipeline.CandidateState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		var state pipeline.CandidateState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
		states = append(states, &state)
	}
	return states, rows.Err()
}
