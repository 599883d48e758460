package main

import (
	"context"
	"expvar"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sampleflow.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunShutsDownOnCancel(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://127.0.0.1:1
  timeout: 1s
storage:
  driver: memory
blob:
  driver: memory
http:
  addr: 127.0.0.1:0
  shutdown_timeout: 2s
log:
  mode: prod
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, path); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: floppy\n")
	err := run(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "storage.driver") {
		t.Fatalf("expected storage.driver error, got %v", err)
	}
}

func TestRunWithExpvarMetricsAndSpanLog(t *testing.T) {
	spans := filepath.Join(t.TempDir(), "spans.jsonl")
	path := writeConfig(t, `
backend:
  base_url: http://127.0.0.1:1
  timeout: 1s
storage:
  driver: memory
blob:
  driver: memory
http:
  addr: 127.0.0.1:0
metrics:
  driver: expvar
tracing:
  json_path: `+spans+`
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, path); err != nil {
		t.Fatalf("run: %v", err)
	}
	if expvar.Get("sampleflow_dispatcher") == nil {
		t.Fatalf("expected dispatcher expvars to be published")
	}
	data, err := os.ReadFile(spans)
	if err != nil {
		t.Fatalf("read span log: %v", err)
	}
	if !strings.Contains(string(data), `"op":"load"`) {
		t.Fatalf("expected load span, got %q", data)
	}
}
