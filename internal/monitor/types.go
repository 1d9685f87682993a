// Package monitor implements the monitoring state store: a bounded,
// thread-safe ledger of events and system metrics with agent and
// conversation registries, a background sampling loop, and durable
// snapshotting of core state.
package monitor

import "time"

// EventType classifies a monitoring event.
type EventType string

const (
	EventAgentCreated      EventType = "agent_created"
	EventAgentDestroyed    EventType = "agent_destroyed"
	EventConversationStart EventType = "conversation_start"
	EventConversationEnd   EventType = "conversation_end"
	EventMessageSent       EventType = "message_sent"
	EventMessageReceived   EventType = "message_received"
	EventToolExecuted      EventType = "tool_executed"
	EventModelCalled       EventType = "model_called"
	EventMemoryOperation   EventType = "memory_operation"
	EventErrorOccurred     EventType = "error_occurred"
	EventPerformanceMetric EventType = "performance_metric"
	EventSystemStatus      EventType = "system_status"
	EventExtensionCalled   EventType = "extension_called"
)

// MonitoringEvent is an immutable record of something that happened,
// tagged with a type, source, and free-form payload.
type MonitoringEvent struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  EventType      `json:"event_type"`
	SourceID   string         `json:"source_id"`
	SourceType string         `json:"source_type"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata"`
}

// AgentStatus is the lifecycle status of a registered agent.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentActive    AgentStatus = "active"
	AgentThinking  AgentStatus = "thinking"
	AgentError     AgentStatus = "error"
	AgentDestroyed AgentStatus = "destroyed"
)

// AgentState tracks one registered agent. Entries are never removed from
// the registry; the liveness sweep flips Status to destroyed instead.
type AgentState struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Number              int            `json:"number"`
	Profile             string         `json:"profile"`
	Status              AgentStatus    `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	LastActivity        time.Time      `json:"last_activity"`
	MessageCount        int            `json:"message_count"`
	ToolUsage           map[string]int `json:"tool_usage"`
	ModelCalls          int            `json:"model_calls"`
	Errors              int            `json:"errors"`
	Subordinates        []string       `json:"subordinates"`
	Superior            string         `json:"superior,omitempty"`
	CurrentTask         string         `json:"current_task,omitempty"`
	ContextWindowTokens int            `json:"context_window_tokens"`
	MemoryOperations    int            `json:"memory_operations"`
	TotalTokensUsed     int            `json:"total_tokens_used"`
	AverageResponseTime float64        `json:"average_response_time"`
}

// ConversationStatus is the lifecycle status of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationPaused    ConversationStatus = "paused"
	ConversationCompleted ConversationStatus = "completed"
	ConversationError     ConversationStatus = "error"
)

// ConversationState tracks one conversation. Created lazily on the first
// message that references an unseen conversation id.
type ConversationState struct {
	ID            string             `json:"id"`
	AgentID       string             `json:"agent_id"`
	StartedAt     time.Time          `json:"started_at"`
	LastMessageAt time.Time          `json:"last_message_at"`
	MessageCount  int                `json:"message_count"`
	Status        ConversationStatus `json:"status"`
	Topic         string             `json:"topic,omitempty"`
	Participants  []string           `json:"participants"`
}

// SystemMetrics is a timestamped snapshot of resource usage plus derived
// aggregates over the live registries. Produced once per sampling tick.
type SystemMetrics struct {
	Timestamp           time.Time `json:"timestamp"`
	CPUPercent          float64   `json:"cpu_percent"`
	MemoryPercent       float64   `json:"memory_percent"`
	MemoryUsedMB        float64   `json:"memory_used_mb"`
	DiskPercent         float64   `json:"disk_percent"`
	Load1               float64   `json:"load_avg_1"`
	ActiveAgents        int       `json:"active_agents"`
	ActiveConversations int       `json:"active_conversations"`
	TotalMessages       int       `json:"total_messages"`
	TotalToolCalls      int       `json:"total_tool_calls"`
	TotalModelCalls     int       `json:"total_model_calls"`
	TotalErrors         int       `json:"total_errors"`
	AverageResponseTime float64   `json:"average_response_time"`
	TotalTokensUsed     int       `json:"total_tokens_used"`
}

// CoreState is the durable, periodically persisted snapshot of the core
// service. It is written wholesale to a JSON file and read back on startup
// to recover the restart count and cumulative totals.
type CoreState struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
	StartTime   string `json:"start_time"`

	Status      string `json:"status"`
	Health      string `json:"health"`
	LastUpdated string `json:"last_updated"`

	UptimeSeconds    float64 `json:"uptime_seconds"`
	TotalUptimeHours float64 `json:"total_uptime_hours"`
	RestartCount     int     `json:"restart_count"`
	ErrorCount       int     `json:"error_count"`

	CurrentCPUPercent    float64 `json:"current_cpu_percent"`
	CurrentMemoryPercent float64 `json:"current_memory_percent"`
	CurrentDiskPercent   float64 `json:"current_disk_percent"`

	TotalAgentsCreated     int `json:"total_agents_created"`
	TotalConversations     int `json:"total_conversations"`
	TotalMessagesProcessed int `json:"total_messages_processed"`

	Hostname string `json:"hostname"`
	LocalIP  string `json:"local_ip"`
}

// SystemStatus is the read-only aggregate snapshot returned to boundary
// adapters by Store.SystemStatus.
type SystemStatus struct {
	UptimeSeconds    float64          `json:"uptime_seconds"`
	CurrentMetrics   SystemMetrics    `json:"current_metrics"`
	EventCounts      map[string]int64 `json:"event_counts"`
	TotalEvents      int              `json:"total_events"`
	MonitoringStatus string           `json:"monitoring_status"`
}

// AgentSummary is the read-only registry snapshot returned to boundary
// adapters by Store.AgentSummary.
type AgentSummary struct {
	Agents             map[string]AgentState        `json:"agents"`
	TotalAgents        int                          `json:"total_agents"`
	ActiveAgents       int                          `json:"active_agents"`
	AgentHierarchy     map[string][]string          `json:"agent_hierarchy"`
	TotalConversations int                          `json:"total_conversations"`
	Conversations      map[string]ConversationState `json:"conversations"`
}
