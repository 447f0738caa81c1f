package pipeline

import "context"

// NullTransitionLog is a no-op implementation of TransitionLog.
type NullTransitionLog struct{}

func NewNullTransitionLog() *NullTransitionLog {
	return &NullTransitionLog{}
}

func (l *NullTransitionLog) LogTransition(ctx context.Context, entry *TransitionLogEntry) error {
	return nil
}

func (l *NullTransitionLog) GetTransitionHistory(ctx context.Context, candidateID string) ([]*TransitionLogEntry, error) {
	return nil, nil
}
