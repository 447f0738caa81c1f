package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hireflow/pipeline/retry"
)

// sideEffect is one unit of best-effort work recorded by a transition:
// an event to broadcast, a status write to the candidate record service,
// or both.
type sideEffect struct {
	event      *WorkflowEvent
	syncStatus *statusSync
}

type statusSync struct {
	candidateID string
	status      RecordStatus
}

// DispatcherOptions configures a side-effect dispatcher.
type DispatcherOptions struct {
	Publisher Publisher
	Records   CandidateRecordService
	Logger    *slog.Logger
	Policy    retry.Policy
	QueueSize int
}

// Dispatcher drains recorded side effects on a background goroutine and
// delivers them with bounded retry. Delivery failures are logged and never
// propagate to the mutation that recorded the effect.
type Dispatcher struct {
	queue     chan sideEffect
	quit      chan struct{}
	publisher Publisher
	records   CandidateRecordService
	policy    retry.Policy
	logger    *slog.Logger
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher creates and starts a dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Publisher == nil {
		opts.Publisher = NewNullPublisher()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy()
	}
	d := &Dispatcher{
		queue:     make(chan sideEffect, opts.QueueSize),
		quit:      make(chan struct{}),
		publisher: opts.Publisher,
		records:   opts.Records,
		policy:    opts.Policy,
		logger:    opts.Logger,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// enqueue records a side effect for asynchronous delivery. The queue is
// bounded: on overflow the effect is dropped with a log line rather than
// blocking the mutation path.
func (d *Dispatcher) enqueue(effect sideEffect) {
	if d.closed.Load() {
		d.logger.Warn("dispatcher closed, dropping side effect")
		return
	}
	select {
	case d.queue <- effect:
	default:
		d.logger.Warn("side effect queue full, dropping",
			"queue_size", cap(d.queue))
	}
}

// Close stops the dispatcher after draining any queued side effects.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case effect := <-d.queue:
			d.dispatch(effect)
		case <-d.quit:
			// Drain whatever is already queued, then exit
			for {
				select {
				case effect := <-d.queue:
					d.dispatch(effect)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(effect sideEffect) {
	ctx := context.Background()

	if effect.syncStatus != nil && d.records != nil {
		err := d.policy.Do(ctx, func(ctx context.Context) error {
			return d.records.SetStatus(ctx, effect.syncStatus.candidateID, effect.syncStatus.status)
		})
		if err != nil {
			serr := NewExternalSyncError("candidate record status sync failed", err)
			d.logger.Error("status sync failed",
				"candidate_id", effect.syncStatus.candidateID,
				"status", effect.syncStatus.status,
				"error", serr)
		}
	}

	if effect.event != nil {
		err := d.policy.Do(ctx, func(ctx context.Context) error {
			return d.publisher.Publish(ctx, effect.event)
		})
		if err != nil {
			serr := NewExternalSyncError("event publish failed", err)
			d.logger.Error("event publish failed",
				"event_id", effect.event.ID,
				"event_type", effect.event.Type,
				"error", serr)
		}
	}
}
