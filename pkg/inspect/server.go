// Package inspect serves a registry of ripple cells over HTTP.
//
// Routes:
//
//	GET    /healthz                  liveness check
//	GET    /metrics                  Prometheus exposition
//	GET    /cells                    names, kinds and subscriber counts
//	GET    /cells/{name}             current value (?path= dotted path, ?query= gjson)
//	PUT    /cells/{name}             replace the value with the JSON body
//	PATCH  /cells/{name}?path=p      write the JSON body at p
//	DELETE /cells/{name}?path=p      delete the value at p
//	POST   /cells/{name}/update      apply a list of set/delete ops through Update
//	GET    /cells/{name}/ws          websocket stream of changes (?select= dotted path)
//	POST   /events/{event}           emit event with the JSON body as payload
//
// Path operations require a composite cell.
package inspect

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the inspector.
type Config struct {
	// Addr is the listen address used by Run.
	Addr string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// SendBuffer is the number of frames queued per websocket. A client
	// that falls further behind is disconnected.
	SendBuffer int

	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger

	// Events receives POST /events/{event}. The route is not mounted when
	// nil.
	Events Emitter
}

// Emitter is the part of events.Bus the inspector needs.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) int
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:            "127.0.0.1:7070",
		ShutdownTimeout: 5 * time.Second,
		SendBuffer:      16,
		WriteTimeout:    10 * time.Second,
		Gatherer:        prometheus.DefaultGatherer,
	}
}

// Server is the inspector HTTP server.
type Server struct {
	config   *Config
	registry *Registry
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// mu protects httpServer, closed and streams.
	mu         sync.Mutex
	httpServer *http.Server
	closed     bool

	// streams tracks open websocket streams so Shutdown can close them.
	streams map[*stream]struct{}
}

// New creates an inspector for registry. A nil config uses DefaultConfig.
func New(registry *Registry, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Gatherer == nil {
		config.Gatherer = defaults.Gatherer
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   config,
		registry: registry,
		logger:   logger.With("component", "inspect"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		streams: make(map[*stream]struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/cells", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Put("/", s.handlePut)
			r.Patch("/", s.handlePatch)
			r.Delete("/", s.handleDelete)
			r.Post("/update", s.handleUpdate)
			r.Get("/ws", s.handleStream)
		})
	})
	if s.config.Events != nil {
		r.Post("/events/{event}", s.handleEmit)
	}
	return r
}

// logRequests logs each request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// Handler returns the inspector's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on Config.Addr and serves until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is like Run on an existing listener. Serve after Shutdown closes
// ln and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspector starting", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes all websocket streams and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	streams := make([]*stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.Unlock()
	for _, st := range streams {
		st.close(websocket.CloseGoingAway, "server shutting down")
	}

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("inspector shutdown complete")
	return nil
}

// StreamCount returns the number of open websocket streams.
func (s *Server) StreamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func (s *Server) track(st *stream) {
	s.mu.Lock()
	s.streams[st] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(st *stream) {
	s.mu.Lock()
	delete(s.streams, st)
	s.mu.Unlock()
}
