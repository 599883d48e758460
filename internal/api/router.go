// Package api exposes the dispatcher, notification differ and export worker
// over HTTP.
package api

import (
	"context"
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sampleflow/internal/adapters/exports"
	"sampleflow/internal/core"
	"sampleflow/internal/notify"
	"sampleflow/pkg/domain"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	dispatcher *core.Dispatcher
	differ     *notify.Differ
	exports    *exports.Worker
	gatherer   prometheus.Gatherer
	debugVars  bool
	log        core.Logger
	actions    map[core.ActionKind]actionFunc
}

// Option configures a Server.
type Option func(*Server)

// WithDiffer enables the notification endpoints.
func WithDiffer(d *notify.Differ) Option { return func(s *Server) { s.differ = d } }

// WithExports enables the export endpoints.
func WithExports(w *exports.Worker) Option { return func(s *Server) { s.exports = w } }

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithDebugVars serves the process expvars on /debug/vars.
func WithDebugVars() Option { return func(s *Server) { s.debugVars = true } }

// WithLogger sets the request logger.
func WithLogger(l core.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

// New builds a server over d.
func New(d *core.Dispatcher, opts ...Option) *Server {
	s := &Server{dispatcher: d, log: quietLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	s.actions = s.actionTable()
	return s
}

// Router returns the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.debugVars {
		r.Handle("/debug/vars", expvar.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/boards/{role}", s.getBoard)
		r.Put("/boards/{role}/sort", s.putSort)

		r.Post("/actions/{kind}", s.postAction)
		r.Get("/mutations", s.listMutations)
		r.Get("/mutations/{id}", s.getMutation)
		r.Get("/undo", s.getUndo)
		r.Post("/undo", s.postUndo)
		r.Get("/notices", s.listNotices)
		r.Post("/refresh", s.postRefresh)

		r.Get("/filter-methods", s.getFilterMethods)
		r.Put("/filter-methods", s.putFilterMethods)
		r.Get("/users", s.listUsers)
		r.Put("/users/{id}/roles", s.putUserRoles)

		if s.differ != nil {
			r.Get("/notifications/{role}", s.getNotifications)
			r.Post("/notifications/{role}/{inbox}/read-all", s.postReadAll)
			r.Post("/notifications/{role}/{inbox}/read/{id}", s.postRead)
		}

		if s.exports != nil {
			r.Post("/exports", s.postExport)
			r.Get("/exports", s.listExports)
			r.Get("/exports/{id}", s.getExport)
			r.Get("/exports/{id}/artifacts/{format}", s.downloadExport)
			r.Delete("/exports/{id}", s.deleteExport)
		}
	})
	return r
}

// WatchNotifications re-observes every role board whenever the store
// changes, so inbox membership tracks the state between requests. The
// returned func unsubscribes.
func (s *Server) WatchNotifications() func() {
	if s.differ == nil {
		return func() {}
	}
	store := s.dispatcher.Store()
	id := store.Subscribe(func(core.Event) { s.observeAll(context.Background()) }, core.EventStateChanged)
	s.observeAll(context.Background())
	return func() { store.Unsubscribe(id) }
}

func (s *Server) observeAll(ctx context.Context) {
	for _, role := range domain.Roles() {
		if _, err := s.observe(ctx, role); err != nil {
			s.log.Warn("observe notifications", "role", role, "error", err)
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
