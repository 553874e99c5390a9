package core

import (
	"context"
	"time"

	"hostelcore/internal/blob"
)

// Logger is the structured logging surface used by the service. Key/value
// pairs follow the message, as with slog.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock. A nil ClockFunc falls back to the wall clock in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f()
}

// AuditStatus records whether an audited operation succeeded.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation for the audit trail.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries for every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// TransferCapacityMode selects how approving a transfer affects hostel counters.
type TransferCapacityMode string

const (
	// TransferCapacityObserved leaves counters untouched on transfer approval.
	TransferCapacityObserved TransferCapacityMode = "observed"
	// TransferCapacityRebalance claims a place at the target and frees one at the source.
	TransferCapacityRebalance TransferCapacityMode = "rebalance"
)

// Valid reports whether m is a known mode.
func (m TransferCapacityMode) Valid() bool {
	return m == TransferCapacityObserved || m == TransferCapacityRebalance
}

const defaultConflictRetries = 2

type serviceOptions struct {
	clock           Clock
	logger          Logger
	audit           AuditRecorder
	metrics         MetricsRecorder
	tracer          Tracer
	outcomes        OutcomePublisher
	blobs           blob.Store
	transferMode    TransferCapacityMode
	conflictRetries int
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:           ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:          noopLogger{},
		audit:           noopAuditRecorder{},
		metrics:         noopMetricsRecorder{},
		tracer:          noopTracer{},
		outcomes:        NoopOutcomePublisher{},
		transferMode:    TransferCapacityObserved,
		conflictRetries: defaultConflictRetries,
	}
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithClock overrides the time source used for request dates and audit timestamps.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder installs an audit sink.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(o *serviceOptions) {
		if rec != nil {
			o.audit = rec
		}
	}
}

// WithMetricsRecorder installs a metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithOutcomePublisher installs the sink for decision events.
func WithOutcomePublisher(pub OutcomePublisher) Option {
	return func(o *serviceOptions) {
		if pub != nil {
			o.outcomes = pub
		}
	}
}

// WithBlobStore enables attachment uploads (profile and complaint images).
func WithBlobStore(store blob.Store) Option {
	return func(o *serviceOptions) {
		o.blobs = store
	}
}

// WithTransferCapacity selects the transfer approval capacity policy. Unknown
// modes are ignored.
func WithTransferCapacity(mode TransferCapacityMode) Option {
	return func(o *serviceOptions) {
		if mode.Valid() {
			o.transferMode = mode
		}
	}
}

// WithConflictRetries sets how many times a command is re-run after a
// version conflict from a durable store. Zero disables retries.
func WithConflictRetries(n int) Option {
	return func(o *serviceOptions) {
		if n >= 0 {
			o.conflictRetries = n
		}
	}
}
