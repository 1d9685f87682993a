package metrics

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gobstack/gobcore/internal/monitor"
	"github.com/gobstack/gobcore/internal/supervisor"
)

type fakeState struct {
	status  monitor.SystemStatus
	summary monitor.AgentSummary
	core    monitor.CoreState
}

func (f fakeState) SystemStatus() monitor.SystemStatus   { return f.status }
func (f fakeState) AgentSummary() monitor.AgentSummary   { return f.summary }
func (f fakeState) CoreStateSnapshot() monitor.CoreState { return f.core }

type fakeProcess struct {
	info supervisor.ProcessInfo
}

func (f fakeProcess) Info() supervisor.ProcessInfo { return f.info }

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestExposeEmptyWithoutProviders(t *testing.T) {
	c := NewCollector()
	c.nowFunc = fixedNow

	if got := c.Expose(); got != "" {
		t.Errorf("Expose() = %q, want empty without providers", got)
	}
}

func TestExposeEventCounts(t *testing.T) {
	c := NewCollector()
	c.nowFunc = fixedNow
	c.SetStateProvider(fakeState{
		status: monitor.SystemStatus{
			EventCounts: map[string]int64{
				"message_sent":  7,
				"agent_created": 2,
			},
		},
	})

	out := c.Expose()
	ts := strconv.FormatInt(fixedNow().UnixMilli(), 10)

	for _, want := range []string{
		"# TYPE gobcore_events_total counter\n",
		"gobcore_events_total{event_type=\"agent_created\"} 2 " + ts + "\n",
		"gobcore_events_total{event_type=\"message_sent\"} 7 " + ts + "\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expose() missing %q", want)
		}
	}

	// Keys are sorted for deterministic output.
	if strings.Index(out, "agent_created") > strings.Index(out, "message_sent") {
		t.Error("event types not sorted")
	}
}

func TestExposeSystemAndServiceMetrics(t *testing.T) {
	c := NewCollector()
	c.nowFunc = fixedNow
	c.SetStateProvider(fakeState{
		status: monitor.SystemStatus{
			UptimeSeconds: 90.5,
			CurrentMetrics: monitor.SystemMetrics{
				CPUPercent:      42.5,
				MemoryPercent:   61.2,
				MemoryUsedMB:    1024,
				DiskPercent:     73.4,
				Load1:           0.55,
				TotalMessages:   10,
				TotalToolCalls:  4,
				TotalModelCalls: 3,
				TotalTokensUsed: 900,
			},
		},
		core: monitor.CoreState{
			RestartCount:     5,
			ErrorCount:       2,
			TotalUptimeHours: 1.5,
		},
	})

	out := c.Expose()
	for _, want := range []string{
		"gobcore_system_cpu_percent 42.50",
		"gobcore_system_memory_percent 61.20",
		"gobcore_system_memory_used_mb 1024.00",
		"gobcore_system_disk_percent 73.40",
		"gobcore_system_load_avg_1 0.55",
		"gobcore_messages_total 10",
		"gobcore_tool_calls_total 4",
		"gobcore_model_calls_total 3",
		"gobcore_tokens_used_total 900",
		"gobcore_uptime_seconds 90.50",
		"gobcore_total_uptime_hours 1.5000",
		"gobcore_restart_count 5",
		"gobcore_errors_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expose() missing %q", want)
		}
	}
}

func TestExposeRegistries(t *testing.T) {
	c := NewCollector()
	c.nowFunc = fixedNow
	c.SetStateProvider(fakeState{
		summary: monitor.AgentSummary{
			TotalAgents: 3,
			Agents: map[string]monitor.AgentState{
				"a": {ID: "a", Status: monitor.AgentActive, AverageResponseTime: 0.25},
				"b": {ID: "b", Status: monitor.AgentActive},
				"c": {ID: "c", Status: monitor.AgentDestroyed},
			},
			TotalConversations: 2,
			Conversations: map[string]monitor.ConversationState{
				"c1": {ID: "c1", Status: monitor.ConversationActive},
				"c2": {ID: "c2", Status: monitor.ConversationCompleted},
			},
		},
	})

	out := c.Expose()
	for _, want := range []string{
		"gobcore_agents_total 3",
		`gobcore_agents{status="active"} 2`,
		`gobcore_agents{status="destroyed"} 1`,
		"gobcore_conversations_total 2",
		"gobcore_conversations_active 1",
		`gobcore_agent_response_time_seconds{agent_id="a"} 0.250000`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expose() missing %q", want)
		}
	}

	// Agents without any recorded response are skipped.
	if strings.Contains(out, `gobcore_agent_response_time_seconds{agent_id="b"}`) {
		t.Error("agent without response times must not be exposed")
	}
}

func TestExposeProcessInfo(t *testing.T) {
	c := NewCollector()
	c.nowFunc = fixedNow
	c.SetProcessProvider(fakeProcess{
		info: supervisor.ProcessInfo{
			State:         supervisor.StateRunning,
			PID:           4242,
			RestartCount:  2,
			CrashCount:    1,
			UptimeSeconds: 33.3,
			CPUPercent:    12.5,
			MemoryRSSMB:   256,
		},
	})

	out := c.Expose()
	for _, want := range []string{
		`gobcore_process_state{state="running"} 1`,
		"gobcore_process_restarts_total 2",
		"gobcore_process_crashes_total 1",
		"gobcore_process_uptime_seconds 33.30",
		"gobcore_process_cpu_percent 12.50",
		"gobcore_process_memory_rss_mb 256.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expose() missing %q", want)
		}
	}
}

func TestExposeConcurrentAccess(t *testing.T) {
	c := NewCollector()
	c.SetStateProvider(fakeState{
		status: monitor.SystemStatus{EventCounts: map[string]int64{"message_sent": 1}},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			c.SetProcessProvider(fakeProcess{})
		}
	}()
	for i := 0; i < 100; i++ {
		_ = c.Expose()
	}
	<-done
}
