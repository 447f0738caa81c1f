package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWorkflowEvent(t *testing.T) {
	event := NewWorkflowEvent(EventCandidateMoved, "recruiter-1")
	require.NotEmpty(t, event.ID)
	require.Equal(t, EventCandidateMoved, event.Type)
	require.Equal(t, "recruiter-1", event.Actor)
	require.False(t, event.Timestamp.IsZero())

	other := NewWorkflowEvent(EventCandidateMoved, "recruiter-1")
	require.NotEqual(t, event.ID, other.ID)
}

func TestPublisherChain(t *testing.T) {
	first := &capturePublisher{}
	second := &capturePublisher{}
	failing := PublisherFunc(func(ctx context.Context, event *WorkflowEvent) error {
		return errors.New("transport down")
	})

	chain := NewPublisherChain(first, failing)
	chain.Add(second)

	event := NewWorkflowEvent(EventSLAWarning, "test")
	err := chain.Publish(context.Background(), event)
	require.Error(t, err)

	// Later publishers still receive the event after an earlier failure
	require.Len(t, first.Events(), 1)
	require.Len(t, second.Events(), 1)
}

func TestNullPublisher(t *testing.T) {
	publisher := NewNullPublisher()
	require.NoError(t, publisher.Publish(context.Background(), NewWorkflowEvent(EventCandidateSynced, "test")))
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	publisher := &capturePublisher{}
	dispatcher := NewDispatcher(DispatcherOptions{Publisher: publisher})

	for i := 0; i < 10; i++ {
		dispatcher.enqueue(sideEffect{event: NewWorkflowEvent(EventCandidateMoved, "test")})
	}
	dispatcher.Close()

	require.Len(t, publisher.Events(), 10)

	// Effects enqueued after close are dropped, not delivered
	dispatcher.enqueue(sideEffect{event: NewWorkflowEvent(EventCandidateMoved, "late")})
	require.Len(t, publisher.Events(), 10)
}

func TestDispatcherRetriesRecoverableFailures(t *testing.T) {
	attempts := 0
	publisher := PublisherFunc(func(ctx context.Context, event *WorkflowEvent) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	dispatcher := NewDispatcher(DispatcherOptions{Publisher: publisher})

	dispatcher.enqueue(sideEffect{event: NewWorkflowEvent(EventCandidateMoved, "test")})
	dispatcher.Close()

	require.Equal(t, 3, attempts)
}

func TestDispatcherGivesUpOnNonRecoverableFailure(t *testing.T) {
	attempts := 0
	publisher := PublisherFunc(func(ctx context.Context, event *WorkflowEvent) error {
		attempts++
		return errors.New("malformed payload")
	})
	dispatcher := NewDispatcher(DispatcherOptions{Publisher: publisher})

	dispatcher.enqueue(sideEffect{event: NewWorkflowEvent(EventCandidateMoved, "test")})
	dispatcher.Close()

	require.Equal(t, 1, attempts)
}
