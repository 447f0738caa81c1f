package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher delivers workflow events over NATS for real-time broadcast.
// Every event is published on three subjects so subscribers can follow a
// single workflow, a single candidate, or the global feed.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher creates a publisher backed by an existing NATS connection.
// The prefix defaults to "pipeline".
func NewNATSPublisher(conn *nats.Conn, subjectPrefix string) *NATSPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "pipeline"
	}
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix}
}

func (p *NATSPublisher) Publish(ctx context.Context, event *WorkflowEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subjects := []string{fmt.Sprintf("%s.events", p.subjectPrefix)}
	if event.WorkflowID != "" {
		subjects = append(subjects, fmt.Sprintf("%s.workflow.%s", p.subjectPrefix, event.WorkflowID))
	}
	if event.CandidateID != "" {
		subjects = append(subjects, fmt.Sprintf("%s.candidate.%s", p.subjectPrefix, event.CandidateID))
	}

	var firstErr error
	for _, subject := range subjects {
		if err := p.conn.Publish(subject, data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
	}
	return firstErr
}
