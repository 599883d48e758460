package memory

import (
	"context"
	"testing"
)

func TestStoreSaveMergesBuckets(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.Save(ctx, map[string][]byte{"comments": []byte(`{}`), "lab_status": []byte(`{"S-1":"progress"}`)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, map[string][]byte{"lab_status": []byte(`{}`)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got["comments"]) != `{}` || string(got["lab_status"]) != `{}` {
		t.Fatalf("unexpected buckets: %v", got)
	}
	if s.Saves() != 2 {
		t.Fatalf("expected 2 saves, got %d", s.Saves())
	}
}

func TestStoreLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.Save(ctx, map[string][]byte{"comments": []byte(`{"a":1}`)})
	got, _ := s.Load(ctx)
	got["comments"][0] = 'x'
	again, _ := s.Load(ctx)
	if string(again["comments"]) != `{"a":1}` {
		t.Fatalf("load must not expose internal buffers, got %s", again["comments"])
	}
}
