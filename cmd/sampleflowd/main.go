// Command sampleflowd serves the sample workflow boards over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sampleflow/internal/adapters/exports"
	"sampleflow/internal/api"
	"sampleflow/internal/backend"
	"sampleflow/internal/blob"
	"sampleflow/internal/config"
	"sampleflow/internal/core"
	"sampleflow/internal/notify"
	"sampleflow/internal/platform/logger"
	"sampleflow/internal/platform/tracing"
)

var exitFunc = os.Exit

func main() {
	configPath := flag.String("config", "sampleflow.yaml", "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "sampleflowd: %v\n", err)
		exitFunc(1)
	}
}

// auditLog writes audit entries through the structured logger.
type auditLog struct{ log *logger.Logger }

func (a auditLog) Record(_ context.Context, e core.AuditEntry) {
	a.log.Info("audit",
		"operation", e.Operation,
		"role", e.Role,
		"entity_id", e.EntityID,
		"status", e.Status,
		"error", e.Error,
		"duration", e.Duration)
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	tp, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{Enabled: cfg.Tracing.Enabled, Endpoint: cfg.Tracing.Endpoint})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown", "error", err)
		}
	}()

	states, err := core.OpenStateStore(ctx, core.StorageConfig{
		Driver:        core.StorageDriver(strings.ToLower(cfg.Storage.Driver)),
		SQLitePath:    cfg.Storage.SQLitePath,
		PostgresDSN:   cfg.Storage.PostgresDSN,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer states.Close()

	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(strings.ToLower(cfg.Blob.Driver)),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    cfg.Blob.S3.Bucket,
			Region:    cfg.Blob.S3.Region,
			Endpoint:  cfg.Blob.S3.Endpoint,
			PathStyle: cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics core.MetricsRecorder
	apiOpts := []api.Option{api.WithGatherer(reg), api.WithLogger(log)}
	switch strings.ToLower(cfg.Metrics.Driver) {
	case "expvar":
		metrics, err = core.NewExpvarMetricsRecorder("sampleflow_dispatcher")
		apiOpts = append(apiOpts, api.WithDebugVars())
	default:
		metrics, err = core.NewPrometheusMetricsRecorder(reg)
	}
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	var tracer core.Tracer = core.NewOTelTracer(tp)
	if cfg.Tracing.JSONPath != "" {
		f, err := os.OpenFile(cfg.Tracing.JSONPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("span log: %w", err)
		}
		defer f.Close()
		tracer = core.TeeTracer(tracer, core.NewSpanLog(f))
	}
	audit := auditLog{log: log}

	dispatcher := core.NewDispatcher(core.NewStore(),
		backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout),
		core.WithLogger(log),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(tracer),
		core.WithAuditRecorder(audit),
		core.WithStateStore(states),
		core.WithUndoCapacity(cfg.Workflow.UndoCapacity),
		core.WithNoticeCapacity(cfg.Workflow.NoticeCapacity),
		core.WithDefaultMethods(cfg.Workflow.DefaultMethods...),
	)
	if err := dispatcher.Load(ctx); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer dispatcher.Wait()

	buckets, err := states.Load(ctx)
	if err != nil {
		return fmt.Errorf("load read state: %w", err)
	}
	read, err := notify.DecodeReadState(buckets)
	if err != nil {
		log.Warn("read state unreadable, starting empty", "error", err)
	}
	differ := notify.NewDiffer(read, states)

	worker := exports.NewWorker(dispatcher, blobs, exports.WithLogger(log), exports.WithAuditRecorder(audit))
	worker.Start()

	server := api.New(dispatcher, append(apiOpts, api.WithDiffer(differ), api.WithExports(worker))...)
	unwatch := server.WatchNotifications()
	defer unwatch()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("sampleflowd listening", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver, "blob", cfg.Blob.Driver, "metrics", cfg.Metrics.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Error("export worker shutdown", "error", err)
	}
	return nil
}
