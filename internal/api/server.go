package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"callscope/internal/calls"
	"callscope/internal/ingest"
	"callscope/internal/jobs"
	"callscope/internal/logging"
	"callscope/internal/services"
)

// CallReader is the read side of the call store.
type CallReader interface {
	Get(ctx context.Context, id string) (*calls.Call, error)
	List(ctx context.Context, filter calls.ListFilter) ([]*calls.Call, error)
	GetAnalysis(ctx context.Context, callID string) (*calls.Analysis, error)
	StatusCounts(ctx context.Context) (map[calls.Status]int, error)
	Path() string
}

// JobTracker is the scheduler surface the API needs.
type JobTracker interface {
	Observe() []jobs.Job
	Get(id string) (jobs.Job, error)
	Dismiss(id string) error
	Subscribe() (<-chan jobs.Job, func())
	Counts() map[jobs.Status]int
}

// Uploader accepts new recordings.
type Uploader interface {
	Submit(ctx context.Context, req ingest.Request) (*ingest.Submission, error)
	MaxBytes() int64
}

// Deps bundles the collaborators behind the routes.
type Deps struct {
	Calls   CallReader
	Jobs    JobTracker
	Uploads Uploader
	// Storage describes the segment store for /api/status.
	Storage string
}

// Options configure the HTTP server.
type Options struct {
	Bind  string
	Token string
}

// Server owns the router and the listening socket.
type Server struct {
	deps     Deps
	opts     Options
	logger   *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
	started  time.Time

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New builds a server. Call Start to listen.
func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		deps:    deps,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "api-server"),
		started: time.Now().UTC(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestContext)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/calls", s.auth(s.handleUpload)).Methods(http.MethodPost)
	api.HandleFunc("/calls", s.auth(s.handleListCalls)).Methods(http.MethodGet)
	api.HandleFunc("/calls/{id}", s.auth(s.handleGetCall)).Methods(http.MethodGet)
	api.HandleFunc("/calls/{id}/analysis", s.auth(s.handleGetAnalysis)).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.auth(s.handleListJobs)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.auth(s.handleGetJob)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.auth(s.handleDismissJob)).Methods(http.MethodDelete)
	api.HandleFunc("/status", s.auth(s.handleStatus)).Methods(http.MethodGet)

	r.HandleFunc("/ws/jobs", s.auth(s.handleJobStream)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return services.Wrap(services.ErrConfiguration, "api", "listen", "api bind address is empty", nil)
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.Serve(ctx, listener)
	return nil
}

// Serve serves on listener until ctx ends. It returns immediately.
func (s *Server) Serve(ctx context.Context, listener net.Listener) {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		// Uploads stream whole recordings; websocket connections manage
		// their own deadlines after the upgrade.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
}

// Addr returns the bound address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, giving in-flight requests five seconds.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// auth validates bearer tokens. With no token configured every request passes.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	token := s.opts.Token
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// requestContext tags each request with a correlation id.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps err onto an HTTP status.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, ingest.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
