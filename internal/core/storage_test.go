package core

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"hostelcore/internal/infra/persistence/postgres"
	"hostelcore/internal/infra/persistence/sqlite"
	"hostelcore/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(StorageOptions{Driver: StorageMemory}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	svc := NewService(store)
	if _, _, err := svc.CreateHostel(context.Background(), HostelInput{Name: "Raman Hall", Type: domain.HostelTypeBoys, TotalRooms: 2}); err != nil {
		t.Fatalf("create hostel: %v", err)
	}
}

func TestOpenPersistentStoreSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "hostel.db")
	store, err := OpenPersistentStore(StorageOptions{Driver: StorageSQLite, SQLitePath: path}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlStore, ok := store.(*sqlite.Store)
	if !ok || sqlStore.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}
	svc := NewService(store)
	hostel, _, err := svc.CreateHostel(ctx, HostelInput{Name: "Raman Hall", Type: domain.HostelTypeBoys, TotalRooms: 2})
	if err != nil {
		t.Fatalf("create hostel: %v", err)
	}
	if err := sqlStore.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPersistentStore(StorageOptions{Driver: StorageSQLite, SQLitePath: path}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	t.Cleanup(func() { _ = reopened.(*sqlite.Store).Close() })
	got, err := NewService(reopened).GetHostel(ctx, hostel.ID)
	if err != nil || got.Name != "Raman Hall" || got.AvailableRooms != 2 {
		t.Fatalf("expected persisted hostel, got %+v err=%v", got, err)
	}
}

func TestOpenPersistentStorePostgresOpenFailure(t *testing.T) {
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return nil, errors.New("dial refused")
	})
	defer restore()
	store, err := OpenPersistentStore(StorageOptions{Driver: StoragePostgres, PostgresDSN: "postgres://nowhere"}, nil)
	if store != nil || err == nil || !strings.Contains(err.Error(), "dial refused") {
		t.Fatalf("expected open failure, got store=%v err=%v", store, err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, err := OpenPersistentStore(StorageOptions{Driver: "mongo"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
