// Package blob selects and constructs attachment storage backends. Callers
// depend on the Store interface re-exported here; only this package imports
// the infra implementations.
package blob

import (
	"context"
	"fmt"

	"hostelcore/internal/blob/core"
	"hostelcore/internal/infra/blob/fs"
	memorystore "hostelcore/internal/infra/blob/memory"
	infraS3 "hostelcore/internal/infra/blob/s3"
)

type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
	// S3Config configures the S3 / MinIO backend.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
	ErrInvalidKey  = core.ErrInvalidKey
)

// Config selects a backend. FSRoot applies to the filesystem driver and S3
// to the s3 driver. PublicBaseURL, when set, is the prefix used for the URL
// of filesystem blobs (for example "/attachments").
type Config struct {
	Driver        Driver
	FSRoot        string
	PublicBaseURL string
	S3            S3Config
}

// Open constructs the configured backend. The filesystem driver is the
// default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot, cfg.PublicBaseURL)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed store rooted at root.
func NewFilesystem(root, publicBaseURL string) (Store, error) {
	store, err := fs.New(root, fs.WithPublicBaseURL(publicBaseURL))
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMemory returns an in-memory store for tests and ephemeral runs.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	store, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMockS3ForTests exposes the in-process S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
