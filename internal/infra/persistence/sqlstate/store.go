// Package sqlstate persists the in-memory store's buckets into a single
// `state` table through database/sql. Each bucket row carries a version that
// writers compare-and-swap, so several processes may share one database
// without losing updates.
package sqlstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"hostelcore/internal/infra/persistence/memory"
	"hostelcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name           string
	PayloadType    string
	QuarantineType string
	Bind           func(n int) string
}

// SQLite is the dialect for modernc.org/sqlite.
var SQLite = Dialect{
	Name:           "sqlite",
	PayloadType:    "BLOB",
	QuarantineType: "BLOB",
	Bind:           func(int) string { return "?" },
}

// Postgres is the dialect for pgx through database/sql.
var Postgres = Dialect{
	Name:           "postgres",
	PayloadType:    "JSONB",
	QuarantineType: "BYTEA",
	Bind:           func(n int) string { return fmt.Sprintf("$%d", n) },
}

func (d Dialect) binds(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = d.Bind(i + 1)
	}
	return out
}

// Store is a memory.Store whose commits are written through to SQL.
type Store struct {
	*memory.Store
	db      *sql.DB
	dialect Dialect
}

// Open ensures the schema exists and hydrates a store from db. When a bucket
// cannot be decoded its payload is copied into state_quarantine and Open
// returns the usable store together with a *domain.StorageCorruptError.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if err := EnsureSchema(ctx, db, dialect); err != nil {
		return nil, err
	}
	s := &Store{db: db, dialect: dialect}
	opts = append(opts, memory.WithCommitter(committer{db: db, dialect: dialect}))
	s.Store = memory.NewStore(engine, opts...)
	if err := s.Reload(ctx); err != nil {
		var corrupt *domain.StorageCorruptError
		if errors.As(err, &corrupt) {
			return s, err
		}
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the state and quarantine tables when absent.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload %s NOT NULL,
		version BIGINT NOT NULL DEFAULT 0
	)`, dialect.PayloadType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS state_quarantine (
		bucket TEXT NOT NULL,
		version BIGINT NOT NULL,
		payload %s NOT NULL,
		reason TEXT NOT NULL,
		quarantined_at TEXT NOT NULL,
		PRIMARY KEY (bucket, version)
	)`, dialect.QuarantineType),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s schema: %w", dialect.Name, err)
		}
	}
	return nil
}

// Reload replaces the in-memory state with the rows currently in the database.
func (s *Store) Reload(ctx context.Context) error {
	raw, err := LoadBuckets(ctx, s.db)
	if err != nil {
		return err
	}
	loadErr := s.LoadBuckets(raw)
	var corrupt *domain.StorageCorruptError
	if errors.As(loadErr, &corrupt) {
		if err := quarantine(ctx, s.db, s.dialect, corrupt.Buckets); err != nil {
			return errors.Join(loadErr, err)
		}
	}
	return loadErr
}

// LoadBuckets reads every row of the state table.
func LoadBuckets(ctx context.Context, db *sql.DB) (map[string]memory.StoredBucket, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload, version FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]memory.StoredBucket)
	for rows.Next() {
		var bucket string
		var payload []byte
		var version int64
		if err := rows.Scan(&bucket, &payload, &version); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out[bucket] = memory.StoredBucket{Payload: payload, Version: version}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return out, nil
}

func quarantine(ctx context.Context, db *sql.DB, d Dialect, buckets []domain.QuarantinedBucket) error {
	stmt := fmt.Sprintf(`INSERT INTO state_quarantine(bucket, version, payload, reason, quarantined_at) VALUES(%s, %s, %s, %s, %s) ON CONFLICT (bucket, version) DO NOTHING`, d.binds(5)...)
	now := time.Now().UTC().Format(time.RFC3339)
	for _, b := range buckets {
		reason := "decode failed"
		if b.Err != nil {
			reason = b.Err.Error()
		}
		if _, err := db.ExecContext(ctx, stmt, b.Bucket, b.Version, b.Payload, reason, now); err != nil {
			return fmt.Errorf("quarantine %s: %w", b.Bucket, err)
		}
	}
	return nil
}

// RunInTransaction applies fn and writes dirty buckets through to SQL. When
// another writer got there first the transaction fails with
// domain.ErrVersionConflict and the store reloads so a retry sees fresh state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil && errors.Is(err, domain.ErrVersionConflict) {
		if rErr := s.Reload(ctx); rErr != nil && !errors.Is(rErr, domain.ErrStorageCorrupt) {
			return res, errors.Join(err, rErr)
		}
	}
	return res, err
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the SQL dialect in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

type committer struct {
	db      *sql.DB
	dialect Dialect
}

// Commit writes every dirty bucket inside one SQL transaction. A bucket whose
// stored version differs from the expected version aborts the whole commit.
func (c committer) Commit(ctx context.Context, commit memory.Commit) (retErr error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	insert := fmt.Sprintf(`INSERT INTO state(bucket, payload, version) VALUES(%s, %s, 1) ON CONFLICT (bucket) DO NOTHING`, c.dialect.binds(2)...)
	update := fmt.Sprintf(`UPDATE state SET payload = %s, version = version + 1 WHERE bucket = %s AND version = %s`, c.dialect.binds(3)...)

	buckets := make([]string, 0, len(commit.Payloads))
	for bucket := range commit.Payloads {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	for _, bucket := range buckets {
		payload := commit.Payloads[bucket]
		expected := commit.Versions[bucket]
		var result sql.Result
		if expected == 0 {
			result, err = tx.ExecContext(ctx, insert, bucket, payload)
		} else {
			result, err = tx.ExecContext(ctx, update, payload, bucket, expected)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", bucket, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected %s: %w", bucket, err)
		}
		if n != 1 {
			return &domain.VersionConflictError{Bucket: bucket, Expected: expected}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
