package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// OutcomeType names a decision event.
type OutcomeType string

const (
	OutcomeRequestApproved  OutcomeType = "request.approved"
	OutcomeRequestRejected  OutcomeType = "request.rejected"
	OutcomeLeaveApproved    OutcomeType = "leave.approved"
	OutcomeLeaveRejected    OutcomeType = "leave.rejected"
	OutcomeComplaintUpdated OutcomeType = "complaint.updated"
)

// OutcomeEvent is published after a decision commits.
type OutcomeEvent struct {
	Type       OutcomeType `json:"type"`
	Entity     EntityType  `json:"entity"`
	ID         string      `json:"id"`
	StudentID  string      `json:"studentId,omitempty"`
	RegNo      string      `json:"regNo,omitempty"`
	Status     string      `json:"status"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// OutcomePublisher delivers decision events to downstream consumers. Errors
// are logged by the service and never fail the command that produced them.
type OutcomePublisher interface {
	Publish(ctx context.Context, event OutcomeEvent) error
}

// NoopOutcomePublisher discards events.
type NoopOutcomePublisher struct{}

// Publish implements OutcomePublisher.
func (NoopOutcomePublisher) Publish(context.Context, OutcomeEvent) error { return nil }

// Outcome queue errors.
var (
	ErrOutcomeQueueFull   = errors.New("outcome queue full")
	ErrOutcomeQueueClosed = errors.New("outcome queue closed")
)

const (
	defaultOutcomeBuffer  = 256
	defaultOutcomeTimeout = 10 * time.Second
)

// OutcomeQueue decouples decision commands from a slow or unreachable sink.
// Publish only enqueues; a single worker forwards events in order with its
// own deadline. A full buffer drops the event and reports ErrOutcomeQueueFull.
type OutcomeQueue struct {
	next    OutcomePublisher
	logger  Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan OutcomeEvent
	done   chan struct{}
}

// NewOutcomeQueue starts the worker. size and timeout fall back to defaults
// when not positive.
func NewOutcomeQueue(next OutcomePublisher, size int, timeout time.Duration, logger Logger) *OutcomeQueue {
	if next == nil {
		next = NoopOutcomePublisher{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if size <= 0 {
		size = defaultOutcomeBuffer
	}
	if timeout <= 0 {
		timeout = defaultOutcomeTimeout
	}
	q := &OutcomeQueue{
		next:    next,
		logger:  logger,
		timeout: timeout,
		events:  make(chan OutcomeEvent, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Publish implements OutcomePublisher without waiting for delivery.
func (q *OutcomeQueue) Publish(_ context.Context, event OutcomeEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrOutcomeQueueClosed
	}
	select {
	case q.events <- event:
		return nil
	default:
		return ErrOutcomeQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be forwarded.
func (q *OutcomeQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.done
	return nil
}

func (q *OutcomeQueue) run() {
	defer close(q.done)
	for event := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.next.Publish(ctx, event); err != nil {
			q.logger.Warn("deliver outcome failed", "type", event.Type, "id", event.ID, "error", err)
		}
		cancel()
	}
}
