package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobstack/gobcore/internal/metrics"
	"github.com/gobstack/gobcore/internal/monitor"
	"github.com/gobstack/gobcore/internal/otel"
	"github.com/gobstack/gobcore/internal/supervisor"
)

// Server serves the monitoring and supervision HTTP surface. The store is
// required; the supervisor, metrics collector, and tracer are optional and
// their endpoints degrade to 503 when absent.
type Server struct {
	store            *monitor.Store
	supervisor       *supervisor.Supervisor
	metricsCollector *metrics.Collector
	tracer           *otel.Tracer
	server           *http.Server
	listener         net.Listener
	mu               sync.Mutex
	running          bool
	addr             string
}

// NewServer creates a server bound to addr.
func NewServer(addr string, store *monitor.Store) *Server {
	return &Server{
		store: store,
		addr:  addr,
	}
}

// SetSupervisor attaches the process supervisor behind /api/process.
func (s *Server) SetSupervisor(sup *supervisor.Supervisor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supervisor = sup
}

// SetMetricsCollector attaches the Prometheus collector behind /metrics.
func (s *Server) SetMetricsCollector(mc *metrics.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsCollector = mc
}

// SetTracer attaches the tracer used by the HTTP middleware.
func (s *Server) SetTracer(t *otel.Tracer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracer = t
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/agents", s.handleListAgents)
	mux.HandleFunc("/api/agents/", s.routeAgents)
	mux.HandleFunc("/api/metrics", s.handleCurrentMetrics)
	mux.HandleFunc("/api/metrics/history", s.handleMetricsHistory)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/events/stream", s.handleStreamEvents)

	mux.HandleFunc("/api/process/start", s.handleProcessStart)
	mux.HandleFunc("/api/process/stop", s.handleProcessStop)
	mux.HandleFunc("/api/process/restart", s.handleProcessRestart)
	mux.HandleFunc("/api/process/status", s.handleProcessStatus)
	mux.HandleFunc("/api/process/output", s.handleProcessOutput)
	mux.HandleFunc("/api/process/output/clear", s.handleProcessOutputClear)

	var handler http.Handler = mux
	if s.tracer != nil {
		handler = otel.Middleware(s.tracer)(handler)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second, // Protect against slowloris attacks
	}

	s.running = true

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			fmt.Printf("server error: %v\n", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.Addr())
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartTestServer creates a test server on an ephemeral port and returns it
// with a cleanup function. Returns an error if the server fails to start.
func StartTestServer(store *monitor.Store) (*Server, func(), error) {
	server := NewServer("127.0.0.1:0", store)
	if err := server.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start test server: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
	return server, cleanup, nil
}
