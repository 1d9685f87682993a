// Package api exposes the monitoring state store and the process
// supervisor over HTTP: JSON snapshots, an SSE event stream, process
// lifecycle control, and Prometheus exposition.
package api

import (
	"github.com/gobstack/gobcore/internal/monitor"
	"github.com/gobstack/gobcore/internal/supervisor"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	ErrorType    string                 `json:"error_type"`
	ErrorCode    string                 `json:"error_code"`
	ErrorMessage string                 `json:"error_message"`
	Retryable    bool                   `json:"retryable"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// ErrorType constants for API errors.
const (
	ErrorTypeInvalidArgument = "invalid_argument"
	ErrorTypeNotFound        = "not_found"
	ErrorTypeConflict        = "conflict"
	ErrorTypeUnavailable     = "unavailable"
	ErrorTypeInternal        = "internal"
)

// ErrorCode constants for API errors.
const (
	ErrorCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrorCodeInvalidRequest   = "INVALID_REQUEST"
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeInternal         = "INTERNAL_ERROR"
)

// NewInvalidRequestErrorResponse builds a 400-class error envelope.
func NewInvalidRequestErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		ErrorType:    ErrorTypeInvalidArgument,
		ErrorCode:    ErrorCodeInvalidRequest,
		ErrorMessage: message,
		Retryable:    false,
	}
}

// NewNotFoundErrorResponse builds a 404 error envelope for a resource id.
func NewNotFoundErrorResponse(id string) *ErrorResponse {
	return &ErrorResponse{
		ErrorType:    ErrorTypeNotFound,
		ErrorCode:    ErrorCodeNotFound,
		ErrorMessage: "Resource not found",
		Retryable:    false,
		Details:      map[string]interface{}{"id": id},
	}
}

// NewInternalErrorResponse builds a 500 error envelope.
func NewInternalErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		ErrorType:    ErrorTypeInternal,
		ErrorCode:    ErrorCodeInternal,
		ErrorMessage: message,
		Retryable:    false,
	}
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response body for GET /readyz.
type ReadyResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// AgentResponse is the response body for GET /api/agents/{id}.
type AgentResponse struct {
	Agent monitor.AgentState `json:"agent"`
}

// EventsResponse is the response body for GET /api/events.
type EventsResponse struct {
	Events []monitor.MonitoringEvent `json:"events"`
	Count  int                       `json:"count"`
}

// MetricsHistoryResponse is the response body for GET /api/metrics/history.
type MetricsHistoryResponse struct {
	Metrics []monitor.SystemMetrics `json:"metrics"`
	Count   int                     `json:"count"`
}

// StartProcessRequest is the request body for POST /api/process/start.
type StartProcessRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// StopProcessRequest is the request body for POST /api/process/stop.
type StopProcessRequest struct {
	Force bool `json:"force"`
}

// RestartProcessRequest is the request body for POST /api/process/restart.
// An empty command reuses the previously started one.
type RestartProcessRequest struct {
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// ProcessResponse is the response body for process lifecycle endpoints.
type ProcessResponse struct {
	Process supervisor.ProcessInfo `json:"process"`
}

// OutputResponse is the response body for GET /api/process/output.
type OutputResponse struct {
	Output map[string][]string `json:"output"`
}
