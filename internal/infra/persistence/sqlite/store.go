// Package sqlite provides the embedded-file persistent store. State lives in
// memory and every committed transaction writes its dirty buckets through to a
// SQLite `state` table with compare-and-swap versions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"hostelcore/internal/infra/persistence/memory"
	"hostelcore/internal/infra/persistence/sqlstate"
	"hostelcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "hostelcore.db"

// Store persists bucket payloads to a SQLite file.
type Store struct {
	*sqlstate.Store
	path string
}

// NewStore opens (or creates) the database at path and hydrates the store.
// A non-nil store returned with a *domain.StorageCorruptError is usable; the
// corrupt buckets were copied to state_quarantine and start empty.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	inner, err := sqlstate.Open(context.Background(), db, sqlstate.SQLite, engine, opts...)
	if inner == nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, err
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
