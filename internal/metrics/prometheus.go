// Package metrics provides Prometheus text exposition for the monitoring
// state store and the process supervisor.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobstack/gobcore/internal/monitor"
	"github.com/gobstack/gobcore/internal/supervisor"
)

// StateProvider provides read-only monitoring snapshots for exposition.
// *monitor.Store satisfies it.
type StateProvider interface {
	SystemStatus() monitor.SystemStatus
	AgentSummary() monitor.AgentSummary
	CoreStateSnapshot() monitor.CoreState
}

// ProcessProvider provides the supervised process snapshot for exposition.
// *supervisor.Supervisor satisfies it.
type ProcessProvider interface {
	Info() supervisor.ProcessInfo
}

// Collector renders monitoring state in Prometheus text exposition format.
// Thread-safe for concurrent access.
//
// Lock Strategy: Collector uses a single RWMutex for thread-safety. The
// RWMutex allows concurrent reads via Expose() while serializing provider
// registration. Snapshot reads go through the providers, which carry their
// own locking.
type Collector struct {
	mu sync.RWMutex

	stateProvider   StateProvider
	processProvider ProcessProvider

	// Time function for testing
	nowFunc func() time.Time
}

// NewCollector creates a new metrics Collector.
func NewCollector() *Collector {
	return &Collector{
		nowFunc: time.Now,
	}
}

// SetStateProvider sets the monitoring state provider.
func (c *Collector) SetStateProvider(p StateProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateProvider = p
}

// SetProcessProvider sets the supervised process provider.
func (c *Collector) SetProcessProvider(p ProcessProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processProvider = p
}

// Expose returns the metrics in Prometheus text exposition format.
func (c *Collector) Expose() string {
	c.mu.RLock()
	stateProvider := c.stateProvider
	processProvider := c.processProvider
	timestamp := c.nowFunc().UnixMilli()
	c.mu.RUnlock()

	var sb strings.Builder

	if stateProvider != nil {
		status := stateProvider.SystemStatus()
		summary := stateProvider.AgentSummary()
		core := stateProvider.CoreStateSnapshot()

		// gobcore_events_total
		c.writeEventCounts(&sb, status.EventCounts, timestamp)

		// gobcore_agents / gobcore_conversations
		c.writeRegistries(&sb, summary, timestamp)

		// gobcore_system_*
		c.writeSystemMetrics(&sb, status.CurrentMetrics, timestamp)

		// gobcore_agent_response_time_seconds
		c.writeAgentResponseTimes(&sb, summary, timestamp)

		// gobcore_uptime_seconds and service counters
		c.writeServiceState(&sb, status, core, timestamp)
	}

	if processProvider != nil {
		// gobcore_process_*
		c.writeProcessInfo(&sb, processProvider.Info(), timestamp)
	}

	return sb.String()
}

func (c *Collector) writeEventCounts(sb *strings.Builder, counts map[string]int64, timestamp int64) {
	sb.WriteString("# HELP gobcore_events_total Total number of monitoring events by type\n")
	sb.WriteString("# TYPE gobcore_events_total counter\n")

	// Sort keys for deterministic output
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, eventType := range keys {
		fmt.Fprintf(sb, "gobcore_events_total{event_type=%q} %d %d\n", eventType, counts[eventType], timestamp)
	}
}

func (c *Collector) writeRegistries(sb *strings.Builder, summary monitor.AgentSummary, timestamp int64) {
	sb.WriteString("# HELP gobcore_agents_total Total number of registered agents\n")
	sb.WriteString("# TYPE gobcore_agents_total gauge\n")
	fmt.Fprintf(sb, "gobcore_agents_total %d %d\n", summary.TotalAgents, timestamp)

	sb.WriteString("# HELP gobcore_agents Number of agents by status\n")
	sb.WriteString("# TYPE gobcore_agents gauge\n")

	byStatus := make(map[string]int)
	for _, agent := range summary.Agents {
		byStatus[string(agent.Status)]++
	}
	statuses := make([]string, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(sb, "gobcore_agents{status=%q} %d %d\n", status, byStatus[status], timestamp)
	}

	sb.WriteString("# HELP gobcore_conversations_total Total number of tracked conversations\n")
	sb.WriteString("# TYPE gobcore_conversations_total gauge\n")
	fmt.Fprintf(sb, "gobcore_conversations_total %d %d\n", summary.TotalConversations, timestamp)

	active := 0
	for _, conv := range summary.Conversations {
		if conv.Status == monitor.ConversationActive {
			active++
		}
	}
	sb.WriteString("# HELP gobcore_conversations_active Number of active conversations\n")
	sb.WriteString("# TYPE gobcore_conversations_active gauge\n")
	fmt.Fprintf(sb, "gobcore_conversations_active %d %d\n", active, timestamp)
}

func (c *Collector) writeSystemMetrics(sb *strings.Builder, m monitor.SystemMetrics, timestamp int64) {
	sb.WriteString("# HELP gobcore_system_cpu_percent Host CPU usage percentage\n")
	sb.WriteString("# TYPE gobcore_system_cpu_percent gauge\n")
	fmt.Fprintf(sb, "gobcore_system_cpu_percent %.2f %d\n", m.CPUPercent, timestamp)

	sb.WriteString("# HELP gobcore_system_memory_percent Host memory usage percentage\n")
	sb.WriteString("# TYPE gobcore_system_memory_percent gauge\n")
	fmt.Fprintf(sb, "gobcore_system_memory_percent %.2f %d\n", m.MemoryPercent, timestamp)

	sb.WriteString("# HELP gobcore_system_memory_used_mb Host memory used in MB\n")
	sb.WriteString("# TYPE gobcore_system_memory_used_mb gauge\n")
	fmt.Fprintf(sb, "gobcore_system_memory_used_mb %.2f %d\n", m.MemoryUsedMB, timestamp)

	sb.WriteString("# HELP gobcore_system_disk_percent Host disk usage percentage\n")
	sb.WriteString("# TYPE gobcore_system_disk_percent gauge\n")
	fmt.Fprintf(sb, "gobcore_system_disk_percent %.2f %d\n", m.DiskPercent, timestamp)

	sb.WriteString("# HELP gobcore_system_load_avg_1 Host 1-minute load average\n")
	sb.WriteString("# TYPE gobcore_system_load_avg_1 gauge\n")
	fmt.Fprintf(sb, "gobcore_system_load_avg_1 %.2f %d\n", m.Load1, timestamp)

	sb.WriteString("# HELP gobcore_messages_total Total messages recorded across all agents\n")
	sb.WriteString("# TYPE gobcore_messages_total counter\n")
	fmt.Fprintf(sb, "gobcore_messages_total %d %d\n", m.TotalMessages, timestamp)

	sb.WriteString("# HELP gobcore_tool_calls_total Total tool executions recorded\n")
	sb.WriteString("# TYPE gobcore_tool_calls_total counter\n")
	fmt.Fprintf(sb, "gobcore_tool_calls_total %d %d\n", m.TotalToolCalls, timestamp)

	sb.WriteString("# HELP gobcore_model_calls_total Total model calls recorded\n")
	sb.WriteString("# TYPE gobcore_model_calls_total counter\n")
	fmt.Fprintf(sb, "gobcore_model_calls_total %d %d\n", m.TotalModelCalls, timestamp)

	sb.WriteString("# HELP gobcore_tokens_used_total Total tokens consumed by model calls\n")
	sb.WriteString("# TYPE gobcore_tokens_used_total counter\n")
	fmt.Fprintf(sb, "gobcore_tokens_used_total %d %d\n", m.TotalTokensUsed, timestamp)

	sb.WriteString("# HELP gobcore_response_time_seconds Rolling average agent response time\n")
	sb.WriteString("# TYPE gobcore_response_time_seconds gauge\n")
	fmt.Fprintf(sb, "gobcore_response_time_seconds %.6f %d\n", m.AverageResponseTime, timestamp)
}

func (c *Collector) writeAgentResponseTimes(sb *strings.Builder, summary monitor.AgentSummary, timestamp int64) {
	sb.WriteString("# HELP gobcore_agent_response_time_seconds Average response time per agent\n")
	sb.WriteString("# TYPE gobcore_agent_response_time_seconds gauge\n")

	ids := make([]string, 0, len(summary.Agents))
	for id := range summary.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		agent := summary.Agents[id]
		if agent.AverageResponseTime <= 0 {
			continue
		}
		fmt.Fprintf(sb, "gobcore_agent_response_time_seconds{agent_id=%q} %.6f %d\n", id, agent.AverageResponseTime, timestamp)
	}
}

func (c *Collector) writeServiceState(sb *strings.Builder, status monitor.SystemStatus, core monitor.CoreState, timestamp int64) {
	sb.WriteString("# HELP gobcore_uptime_seconds Uptime of the current service session\n")
	sb.WriteString("# TYPE gobcore_uptime_seconds gauge\n")
	fmt.Fprintf(sb, "gobcore_uptime_seconds %.2f %d\n", status.UptimeSeconds, timestamp)

	sb.WriteString("# HELP gobcore_total_uptime_hours Cumulative uptime across restarts in hours\n")
	sb.WriteString("# TYPE gobcore_total_uptime_hours counter\n")
	fmt.Fprintf(sb, "gobcore_total_uptime_hours %.4f %d\n", core.TotalUptimeHours, timestamp)

	sb.WriteString("# HELP gobcore_restart_count Number of service starts recorded in the durable snapshot\n")
	sb.WriteString("# TYPE gobcore_restart_count counter\n")
	fmt.Fprintf(sb, "gobcore_restart_count %d %d\n", core.RestartCount, timestamp)

	sb.WriteString("# HELP gobcore_errors_total Total error events recorded\n")
	sb.WriteString("# TYPE gobcore_errors_total counter\n")
	fmt.Fprintf(sb, "gobcore_errors_total %d %d\n", core.ErrorCount, timestamp)
}

func (c *Collector) writeProcessInfo(sb *strings.Builder, info supervisor.ProcessInfo, timestamp int64) {
	sb.WriteString("# HELP gobcore_process_state Supervised process state (1 = current state)\n")
	sb.WriteString("# TYPE gobcore_process_state gauge\n")
	fmt.Fprintf(sb, "gobcore_process_state{state=%q} 1 %d\n", string(info.State), timestamp)

	sb.WriteString("# HELP gobcore_process_restarts_total Supervised process restarts\n")
	sb.WriteString("# TYPE gobcore_process_restarts_total counter\n")
	fmt.Fprintf(sb, "gobcore_process_restarts_total %d %d\n", info.RestartCount, timestamp)

	sb.WriteString("# HELP gobcore_process_crashes_total Supervised process crashes\n")
	sb.WriteString("# TYPE gobcore_process_crashes_total counter\n")
	fmt.Fprintf(sb, "gobcore_process_crashes_total %d %d\n", info.CrashCount, timestamp)

	sb.WriteString("# HELP gobcore_process_uptime_seconds Uptime of the supervised process\n")
	sb.WriteString("# TYPE gobcore_process_uptime_seconds gauge\n")
	fmt.Fprintf(sb, "gobcore_process_uptime_seconds %.2f %d\n", info.UptimeSeconds, timestamp)

	sb.WriteString("# HELP gobcore_process_cpu_percent Supervised process CPU usage percentage\n")
	sb.WriteString("# TYPE gobcore_process_cpu_percent gauge\n")
	fmt.Fprintf(sb, "gobcore_process_cpu_percent %.2f %d\n", info.CPUPercent, timestamp)

	sb.WriteString("# HELP gobcore_process_memory_rss_mb Supervised process resident memory in MB\n")
	sb.WriteString("# TYPE gobcore_process_memory_rss_mb gauge\n")
	fmt.Fprintf(sb, "gobcore_process_memory_rss_mb %.2f %d\n", info.MemoryRSSMB, timestamp)
}
