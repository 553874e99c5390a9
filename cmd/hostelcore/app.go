package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hostelcore/internal/blob"
	"hostelcore/internal/config"
	"hostelcore/internal/core"
	"hostelcore/internal/infra/broker/kafka"
	"hostelcore/internal/logging"
	"hostelcore/pkg/domain"
)

// app holds the wired process dependencies.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    core.PersistentStore
	blobs    blob.Store
	svc      *core.Service
	registry *prometheus.Registry
	// corrupt is set when the store opened with quarantined buckets.
	corrupt *domain.StorageCorruptError

	closers []func() error
}

// openApp wires storage, attachments, outcome publishing, metrics and
// logging into a Service.
func openApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := logging.New(logging.Config{
		Level:  logging.Level(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: logOut,
	})
	a := &app{cfg: cfg, logger: logger}

	store, err := core.OpenPersistentStore(cfg.StorageOptions(), core.NewDefaultRulesEngine())
	if err != nil {
		if store == nil || !errors.As(err, &a.corrupt) {
			return nil, fmt.Errorf("open store: %w", err)
		}
		for _, b := range a.corrupt.Buckets {
			logger.Warn("bucket quarantined", "bucket", b.Bucket, "version", b.Version, "error", b.Err)
		}
	}
	a.store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	a.blobs = blobs

	opts := append(cfg.ServiceOptions(),
		core.WithLogger(logger.With("component", "service")),
		core.WithAuditRecorder(logging.NewAuditRecorder(logger)),
		core.WithBlobStore(blobs),
	)

	if cfg.KafkaEnabled() {
		pub, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		// Closers run in reverse, so the queue drains before the writer closes.
		queue := core.NewOutcomeQueue(pub, 0, 0, logger.With("component", "outcomes"))
		a.closers = append(a.closers, queue.Close)
		opts = append(opts, core.WithOutcomePublisher(queue))
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusMetricsRecorder(a.registry, cfg.Metrics.Namespace)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}

	if logging.Level(cfg.Logging.Level) == logging.DebugLevel {
		opts = append(opts, core.WithTracer(core.NewLogTracer(logger.With("component", "trace"), 0)))
	}
	a.svc = core.NewService(store, opts...)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
