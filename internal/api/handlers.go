package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/gobstack/gobcore/internal/monitor"
	"github.com/gobstack/gobcore/internal/otel"
	"github.com/gobstack/gobcore/internal/supervisor"
)

const (
	// sseHeartbeatInterval is how often a :keepalive comment is sent on
	// an idle event stream.
	sseHeartbeatInterval = 15 * time.Second

	// sseEventBufferSize bounds the per-subscriber event channel. The
	// store listener must never block, so events beyond the buffer are
	// dropped for that subscriber.
	sseEventBufferSize = 256

	// defaultEventLimit caps GET /api/events when no limit is given.
	defaultEventLimit = 100
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 * 1024 * 1024

// limitedBody returns a reader that limits the body size.
// Use this before json.NewDecoder to prevent memory exhaustion.
func limitedBody(w http.ResponseWriter, r *http.Request) io.Reader {
	return http.MaxBytesReader(w, r.Body, maxRequestBodySize)
}

func (s *Server) getSupervisor() *supervisor.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supervisor
}

// lifecycleContext wraps the request context in a process lifecycle span
// when a tracer is attached. The returned span is nil otherwise.
func (s *Server) lifecycleContext(r *http.Request, operation, command string) (context.Context, trace.Span) {
	s.mu.Lock()
	tracer := s.tracer
	s.mu.Unlock()

	if tracer == nil {
		return r.Context(), nil
	}
	return tracer.StartLifecycleSpan(r.Context(), otel.LifecycleSpanOptions{
		Operation: operation,
		Command:   command,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, errResp *ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errResp)
}

func (s *Server) writeMethodNotAllowed(w http.ResponseWriter, method, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, &ErrorResponse{
		ErrorType:    ErrorTypeInvalidArgument,
		ErrorCode:    ErrorCodeMethodNotAllowed,
		ErrorMessage: "Method not allowed",
		Retryable:    false,
		Details: map[string]interface{}{
			"method":  method,
			"allowed": allowed,
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}
	s.writeJSON(w, http.StatusOK, &HealthResponse{Status: "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}

	ready := s.store != nil && s.store.Running()
	status := "ready"
	if !ready {
		status = "not_ready"
	}

	s.writeJSON(w, http.StatusOK, &ReadyResponse{
		Status: status,
		Ready:  ready,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.CoreStateSnapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.SystemStatus())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.AgentSummary())
}

func (s *Server) routeAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}

	agentID := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	if agentID == "" || strings.Contains(agentID, "/") {
		s.writeError(w, http.StatusNotFound, NewNotFoundErrorResponse(r.URL.Path))
		return
	}

	agent, ok := s.store.Agent(agentID)
	if !ok {
		s.writeError(w, http.StatusNotFound, NewNotFoundErrorResponse(agentID))
		return
	}
	s.writeJSON(w, http.StatusOK, &AgentResponse{Agent: agent})
}

func (s *Server) handleCurrentMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.CurrentMetrics())
}

func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}

	limit, ok := parseLimit(w, s, r, 0)
	if !ok {
		return
	}

	history := s.store.MetricsHistory(limit)
	s.writeJSON(w, http.StatusOK, &MetricsHistoryResponse{
		Metrics: history,
		Count:   len(history),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}

	limit, ok := parseLimit(w, s, r, defaultEventLimit)
	if !ok {
		return
	}

	var types []monitor.EventType
	if typesParam := r.URL.Query().Get("types"); typesParam != "" {
		for _, t := range strings.Split(typesParam, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, monitor.EventType(t))
			}
		}
	}

	events := s.store.RecentEvents(limit, types...)
	s.writeJSON(w, http.StatusOK, &EventsResponse{
		Events: events,
		Count:  len(events),
	})
}

// parseLimit reads the limit query parameter. Returns false after writing
// an error response when the value is not a non-negative integer.
func parseLimit(w http.ResponseWriter, s *Server, r *http.Request, fallback int) (int, bool) {
	limitParam := r.URL.Query().Get("limit")
	if limitParam == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(limitParam)
	if err != nil || limit < 0 {
		s.writeError(w, http.StatusBadRequest, NewInvalidRequestErrorResponse(
			"Invalid limit parameter: must be non-negative integer"))
		return 0, false
	}
	return limit, true
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}

	s.mu.Lock()
	collector := s.metricsCollector
	s.mu.Unlock()

	if collector == nil {
		s.writeError(w, http.StatusServiceUnavailable, &ErrorResponse{
			ErrorType:    ErrorTypeUnavailable,
			ErrorCode:    "METRICS_NOT_CONFIGURED",
			ErrorMessage: "Metrics collector not configured",
			Retryable:    false,
		})
		return
	}

	output := collector.Expose()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(output))
}

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, NewInternalErrorResponse("Streaming not supported"))
		return
	}

	// The listener contract forbids blocking, so the subscription goes
	// through a buffered channel and overflow is dropped.
	ch := make(chan monitor.MonitoringEvent, sseEventBufferSize)
	remove := s.store.AddEventListener(monitor.EventListenerFunc(func(event monitor.MonitoringEvent) {
		select {
		case ch <- event:
		default:
		}
	}))
	defer remove()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeatTicker := time.NewTicker(sseHeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeatTicker.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		case event := <-ch:
			eventData, err := json.Marshal(event)
			if err != nil {
				continue
			}

			fmt.Fprintf(w, "event: monitoring_event\n")
			fmt.Fprintf(w, "id: %s\n", event.ID)
			fmt.Fprintf(w, "data: %s\n\n", eventData)
			flusher.Flush()
		}
	}
}

func (s *Server) supervisorOr503(w http.ResponseWriter) *supervisor.Supervisor {
	sup := s.getSupervisor()
	if sup == nil {
		s.writeError(w, http.StatusServiceUnavailable, &ErrorResponse{
			ErrorType:    ErrorTypeUnavailable,
			ErrorCode:    "SUPERVISOR_NOT_CONFIGURED",
			ErrorMessage: "Process supervisor not configured",
			Retryable:    false,
		})
		return nil
	}
	return sup
}

func (s *Server) handleProcessStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w, r.Method, "POST")
		return
	}
	sup := s.supervisorOr503(w)
	if sup == nil {
		return
	}

	var req StartProcessRequest
	if err := json.NewDecoder(limitedBody(w, r)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, NewInvalidRequestErrorResponse(
			fmt.Sprintf("Invalid JSON: %v", err)))
		return
	}
	if req.Command == "" {
		s.writeError(w, http.StatusBadRequest, NewInvalidRequestErrorResponse(
			"Missing required field: command"))
		return
	}

	ctx, span := s.lifecycleContext(r, "start", req.Command)
	if span != nil {
		defer span.End()
	}

	if err := sup.Start(ctx, req.Command, req.Args...); err != nil {
		otel.RecordError(span, err, "supervisor", errors.Is(err, supervisor.ErrStartupFailed))
		s.handleSupervisorError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &ProcessResponse{Process: sup.Info()})
}

func (s *Server) handleProcessStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w, r.Method, "POST")
		return
	}
	sup := s.supervisorOr503(w)
	if sup == nil {
		return
	}

	var req StopProcessRequest
	if err := json.NewDecoder(limitedBody(w, r)).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, http.StatusBadRequest, NewInvalidRequestErrorResponse(
			fmt.Sprintf("Invalid JSON: %v", err)))
		return
	}

	ctx, span := s.lifecycleContext(r, "stop", "")
	if span != nil {
		defer span.End()
	}

	if err := sup.Stop(ctx, req.Force); err != nil {
		otel.RecordError(span, err, "supervisor", false)
		s.handleSupervisorError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &ProcessResponse{Process: sup.Info()})
}

func (s *Server) handleProcessRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w, r.Method, "POST")
		return
	}
	sup := s.supervisorOr503(w)
	if sup == nil {
		return
	}

	var req RestartProcessRequest
	if err := json.NewDecoder(limitedBody(w, r)).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, http.StatusBadRequest, NewInvalidRequestErrorResponse(
			fmt.Sprintf("Invalid JSON: %v", err)))
		return
	}

	ctx, span := s.lifecycleContext(r, "restart", req.Command)
	if span != nil {
		defer span.End()
	}

	if err := sup.Restart(ctx, req.Command, req.Args...); err != nil {
		otel.RecordError(span, err, "supervisor", errors.Is(err, supervisor.ErrStartupFailed))
		s.handleSupervisorError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &ProcessResponse{Process: sup.Info()})
}

func (s *Server) handleProcessStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}
	sup := s.supervisorOr503(w)
	if sup == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, &ProcessResponse{Process: sup.Info()})
}

func (s *Server) handleProcessOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, r.Method, "GET")
		return
	}
	sup := s.supervisorOr503(w)
	if sup == nil {
		return
	}

	lines := 0
	if linesParam := r.URL.Query().Get("lines"); linesParam != "" {
		parsed, err := strconv.Atoi(linesParam)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, NewInvalidRequestErrorResponse(
				"Invalid lines parameter: must be non-negative integer"))
			return
		}
		lines = parsed
	}

	source := r.URL.Query().Get("source")
	switch source {
	case "", supervisor.SourceStdout, supervisor.SourceStderr, supervisor.SourceBoth:
	default:
		s.writeError(w, http.StatusBadRequest, NewInvalidRequestErrorResponse(
			"Invalid source parameter: must be stdout, stderr, or both"))
		return
	}

	s.writeJSON(w, http.StatusOK, &OutputResponse{Output: sup.RecentOutput(lines, source)})
}

func (s *Server) handleProcessOutputClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w, r.Method, "POST")
		return
	}
	sup := s.supervisorOr503(w)
	if sup == nil {
		return
	}
	sup.ClearOutputBuffers()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSupervisorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, &ErrorResponse{
			ErrorType:    ErrorTypeConflict,
			ErrorCode:    "PROCESS_ALREADY_RUNNING",
			ErrorMessage: "A process is already running or starting",
			Retryable:    false,
		})
	case errors.Is(err, supervisor.ErrStartupFailed):
		s.writeError(w, http.StatusInternalServerError, &ErrorResponse{
			ErrorType:    ErrorTypeInternal,
			ErrorCode:    "PROCESS_STARTUP_FAILED",
			ErrorMessage: "Process exited during startup",
			Retryable:    true,
		})
	default:
		s.writeError(w, http.StatusInternalServerError, NewInternalErrorResponse(err.Error()))
	}
}
