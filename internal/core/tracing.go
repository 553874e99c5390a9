package core

import (
	"context"
	"sync"
	"time"
)

// SpanRecord is one finished operation as seen by LogTracer.
type SpanRecord struct {
	Operation string
	Err       error
	Started   time.Time
	Duration  time.Duration
}

// LogTracer writes finished spans to a Logger at debug level and keeps the
// most recent ones in memory.
type LogTracer struct {
	logger Logger
	clock  Clock
	keep   int

	mu     sync.Mutex
	recent []SpanRecord
}

const defaultTraceKeep = 64

// NewLogTracer returns a tracer that logs through logger. keep bounds the
// retained spans; zero or less keeps the default.
func NewLogTracer(logger Logger, keep int) *LogTracer {
	if logger == nil {
		logger = noopLogger{}
	}
	if keep <= 0 {
		keep = defaultTraceKeep
	}
	return &LogTracer{logger: logger, clock: ClockFunc(nil), keep: keep}
}

// Start implements Tracer.
func (t *LogTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &logSpan{tracer: t, operation: operation, started: t.clock.Now()}
}

// Recent returns retained spans, oldest first.
func (t *LogTracer) Recent() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanRecord, len(t.recent))
	copy(out, t.recent)
	return out
}

func (t *LogTracer) finish(rec SpanRecord) {
	t.mu.Lock()
	t.recent = append(t.recent, rec)
	if over := len(t.recent) - t.keep; over > 0 {
		t.recent = append(t.recent[:0:0], t.recent[over:]...)
	}
	t.mu.Unlock()

	kv := []any{"operation", rec.Operation, "duration", rec.Duration}
	if rec.Err != nil {
		kv = append(kv, "error", rec.Err)
	}
	t.logger.Debug("span", kv...)
}

type logSpan struct {
	tracer    *LogTracer
	operation string
	started   time.Time
	once      sync.Once
}

func (s *logSpan) End(err error) {
	s.once.Do(func() {
		s.tracer.finish(SpanRecord{
			Operation: s.operation,
			Err:       err,
			Started:   s.started,
			Duration:  s.tracer.clock.Now().Sub(s.started),
		})
	})
}
