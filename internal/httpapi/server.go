package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/MimeLyc/dynamic-splash/internal/config"
	"github.com/MimeLyc/dynamic-splash/internal/kvstore"
	"github.com/MimeLyc/dynamic-splash/internal/manager"
	"github.com/MimeLyc/dynamic-splash/pkg/icron"
)

// DefaultInstance is used when a request names no instance.
const DefaultInstance = "default"

// Runner is the refresh runner the API drives. *service.Runner implements it.
type Runner interface {
	Trigger(ctx context.Context, source string) (kvstore.Run, error)
	LastRun() (kvstore.Run, bool)
	RecentRuns(ctx context.Context, limit int) ([]kvstore.Run, error)
	NextRefresh(now time.Time) *icron.TriggerInfo
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	registry *manager.Registry
	runner   Runner
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier
	feedDir  string
	now      func() time.Time

	router *mux.Router

	mu     sync.Mutex
	server *http.Server
}

type Option func(*Server)

func WithRunner(runner Runner) Option {
	return func(s *Server) {
		s.runner = runner
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithFeedDir serves the files in dir under /feed/, so a splash config
// and its images can be hosted by the runner itself.
func WithFeedDir(dir string) Option {
	return func(s *Server) {
		s.feedDir = dir
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func NewServer(registry *manager.Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		now:      time.Now,
		router:   mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until Shutdown. It returns
// http.ErrServerClosed when Shutdown was called first.
func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	s.server.Addr = addr
	s.mu.Unlock()
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/api/instances", s.handleInstances).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/plan", s.handlePlan).Methods(http.MethodGet)
	r.HandleFunc("/api/visible", s.handleVisible).Methods(http.MethodGet)
	r.HandleFunc("/api/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/api/clear", s.handleClear).Methods(http.MethodPost)
	r.HandleFunc("/api/hide", s.handleHide).Methods(http.MethodPost)
	r.HandleFunc("/api/runs", s.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.handleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.handlePutSettings).Methods(http.MethodPut)
	r.HandleFunc("/feed/{file}", s.handleFeed).Methods(http.MethodGet, http.MethodHead)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}
