package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Defaults()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sampleflow.yaml")
	body := `
backend:
  base_url: http://lims.internal
  timeout: 3s
storage:
  driver: postgres
  postgres_dsn: postgres://db/sampleflow
blob:
  driver: s3
  s3:
    bucket: exports
    path_style: true
workflow:
  default_methods: [SARA, XRF]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SAMPLEFLOW_HTTP_ADDR", ":9090")
	t.Setenv("SAMPLEFLOW_WORKFLOW_UNDO_CAPACITY", "5")
	t.Setenv("SAMPLEFLOW_BLOB_S3_REGION", "eu-central-1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://lims.internal" || cfg.Backend.Timeout != 3*time.Second {
		t.Fatalf("backend not loaded: %+v", cfg.Backend)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.SQLitePath != "sampleflow.db" {
		t.Fatalf("storage merge wrong: %+v", cfg.Storage)
	}
	if cfg.Blob.S3.Bucket != "exports" || !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Region != "eu-central-1" {
		t.Fatalf("blob config wrong: %+v", cfg.Blob)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Workflow.UndoCapacity != 5 || cfg.Workflow.NoticeCapacity != 50 {
		t.Fatalf("env overrides wrong: %+v %+v", cfg.HTTP, cfg.Workflow)
	}
	if !reflect.DeepEqual(cfg.Workflow.DefaultMethods, []string{"SARA", "XRF"}) {
		t.Fatalf("methods = %v", cfg.Workflow.DefaultMethods)
	}
}

func TestLoadEnvList(t *testing.T) {
	t.Setenv("SAMPLEFLOW_WORKFLOW_DEFAULT_METHODS", "IR,GC-MS")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Workflow.DefaultMethods, []string{"IR", "GC-MS"}) {
		t.Fatalf("methods = %v", cfg.Workflow.DefaultMethods)
	}
}

func TestLoadObservabilityKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sampleflow.yaml")
	body := `
http:
  read_header_timeout: 2s
metrics:
  driver: expvar
tracing:
  json_path: /var/log/sampleflow/spans.jsonl
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SAMPLEFLOW_HTTP_SHUTDOWN_TIMEOUT", "30s")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.ReadHeaderTimeout != 2*time.Second || cfg.HTTP.ShutdownTimeout != 30*time.Second {
		t.Fatalf("timeouts not independent: %+v", cfg.HTTP)
	}
	if cfg.Metrics.Driver != "expvar" || cfg.Tracing.JSONPath != "/var/log/sampleflow/spans.jsonl" {
		t.Fatalf("observability keys not loaded: %+v %+v", cfg.Metrics, cfg.Tracing)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"storage.driver":           func(c *Config) { c.Storage.Driver = "mongo" },
		"blob.driver":              func(c *Config) { c.Blob.Driver = "ftp" },
		"blob.s3.bucket":           func(c *Config) { c.Blob.Driver = "s3" },
		"workflow.undo_capacity":   func(c *Config) { c.Workflow.UndoCapacity = 0 },
		"workflow.notice_capacity": func(c *Config) { c.Workflow.NoticeCapacity = -1 },
		"backend.timeout":          func(c *Config) { c.Backend.Timeout = 0 },
		"metrics.driver":           func(c *Config) { c.Metrics.Driver = "statsd" },
		"http.read_header_timeout": func(c *Config) { c.HTTP.ReadHeaderTimeout = 0 },
	}
	for field, mutate := range cases {
		cfg := Defaults()
		mutate(cfg)
		err := cfg.Validate()
		if err == nil || !strings.HasPrefix(err.Error(), field) {
			t.Fatalf("%s: got %v", field, err)
		}
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("backend: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Storage.Driver = "redis"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}
