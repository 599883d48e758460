package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sampleflow/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "exports/lab/a.csv", bytes.NewReader([]byte("id\nS-1\n")), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"role": "lab"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ETag == "" || !strings.HasPrefix(info.URL, "file://sampleflow.blob/") {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "exports/lab/a.csv", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	head, err := store.Head(ctx, "exports/lab/a.csv")
	if err != nil || head.Metadata["role"] != "lab" || head.ContentType != "text/csv" {
		t.Fatalf("head: %v %+v", err, head)
	}
	_, rc, err := store.Get(ctx, "exports/lab/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "id\nS-1\n" {
		t.Fatalf("body mismatch %q", data)
	}
	if _, err := store.Put(ctx, "exports/admin/b.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "exports/lab/")
	if err != nil || len(list) != 1 || list[0].Key != "exports/lab/a.csv" {
		t.Fatalf("list: %v %+v", err, list)
	}
	ok, err := store.Delete(ctx, "exports/lab/a.csv")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "exports/lab/a.csv")
	if err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(store.root, "exports", "lab", "a.csv.meta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("sidecar left behind: %v", err)
	}
}

func TestStoreMissingKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
}

func TestStoreRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", " ", "/abs", "../up", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
	if _, err := store.PresignURL(ctx, "../x", core.SignedURLOptions{}); err == nil {
		t.Fatalf("expected presign key error")
	}
	if _, err := store.PresignURL(ctx, "x", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestNewDefaultsRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	store, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.root != DefaultRoot {
		t.Fatalf("root = %q", store.root)
	}
	if _, err := os.Stat(DefaultRoot); err != nil {
		t.Fatalf("root not created: %v", err)
	}
}
