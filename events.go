package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a workflow event.
type EventType string

const (
	EventCandidateMoved     EventType = "candidate_moved"
	EventCandidateSynced    EventType = "candidate_synced"
	EventPhaseCompleted     EventType = "phase_completed"
	EventSLAWarning         EventType = "sla_warning"
	EventBottleneckDetected EventType = "bottleneck_detected"
)

// WorkflowEvent is an ephemeral notification emitted on transitions and
// syncs. Events are used for fan-out only and are not durably persisted.
type WorkflowEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	CandidateID string         `json:"candidate_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	PhaseID     string         `json:"phase_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Actor       string         `json:"actor,omitempty"`
}

// NewWorkflowEvent creates an event with a fresh ID and timestamp.
func NewWorkflowEvent(eventType EventType, actor string) *WorkflowEvent {
	return &WorkflowEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Actor:     actor,
	}
}

// Publisher delivers workflow events to interested parties. The engine calls
// Publish on a best-effort basis: a publish failure is logged and never
// reverses the transition that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event *WorkflowEvent) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event *WorkflowEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event *WorkflowEvent) error {
	return f(ctx, event)
}

// NullPublisher is a no-op implementation of Publisher.
type NullPublisher struct{}

func NewNullPublisher() *NullPublisher {
	return &NullPublisher{}
}

func (p *NullPublisher) Publish(ctx context.Context, event *WorkflowEvent) error {
	return nil
}

// PublisherChain fans an event out to multiple publishers. Each publisher is
// attempted even when an earlier one fails; the first error is returned.
type PublisherChain struct {
	publishers []Publisher
}

// NewPublisherChain creates a new publisher chain
func NewPublisherChain(publishers ...Publisher) *PublisherChain {
	return &PublisherChain{publishers: publishers}
}

// Add appends a publisher to the chain
func (c *PublisherChain) Add(publisher Publisher) {
	c.publishers = append(c.publishers, publisher)
}

func (c *PublisherChain) Publish(ctx context.Context, event *WorkflowEvent) error {
	var firstErr error
	for _, publisher := range c.publishers {
		if err := publisher.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
