package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"hostelcore/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	meta := map[string]string{"student": "s1"}
	info, err := store.Put(ctx, "students/s1/./profile.png", strings.NewReader("img"), core.PutOptions{ContentType: "image/png", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "students/s1/profile.png" || info.Size != 3 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	meta["student"] = "mutated"
	if _, err := store.Put(ctx, "students/s1/profile.png", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "students/s1/profile.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "img" || got.Metadata["student"] != "s1" {
		t.Fatalf("stored copy must be isolated, got %q %+v", body, got.Metadata)
	}
	got.Metadata["student"] = "changed"
	head, _ := store.Head(ctx, "students/s1/profile.png")
	if head.Metadata["student"] != "s1" {
		t.Fatalf("returned metadata must be a copy")
	}

	store.Put(ctx, "complaints/c1/image.jpg", strings.NewReader("jpg"), core.PutOptions{})
	list, _ := store.List(ctx, "students/")
	if len(list) != 1 {
		t.Fatalf("expected prefix filter, got %+v", list)
	}
	if all, _ := store.List(ctx, ""); len(all) != 2 || all[0].Key != "complaints/c1/image.jpg" {
		t.Fatalf("expected sorted listing, got %+v", all)
	}

	if ok, err := store.Delete(ctx, "students/s1/profile.png"); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "students/s1/profile.png"); ok {
		t.Fatalf("second delete must report false")
	}
	if _, err := store.Head(ctx, "students/s1/profile.png"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.PresignURL(ctx, "x", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk unplugged") }

func TestStoreRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"", "/abs", "a/../../b", `a\b`} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
	if _, err := store.Put(ctx, "k", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.Put(cancelled, "k", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if list, _ := store.List(ctx, ""); len(list) != 0 {
		t.Fatalf("failed puts must not store anything")
	}
}
