package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gobstack/gobcore/internal/config"
	"github.com/gobstack/gobcore/internal/events"
)

// StoreConfig configures a Store. Zero values fall back to the defaults in
// internal/config.
type StoreConfig struct {
	MaxEventsHistory   int
	MaxMetricsHistory  int
	ResponseTimeWindow int

	SampleInterval     time.Duration
	SweepInterval      time.Duration
	PersistInterval    time.Duration
	SamplerJoinTimeout time.Duration

	// StatePath is the durable snapshot file location.
	StatePath string

	// Probe supplies host resource readings. Defaults to the gopsutil probe.
	Probe SystemProbe

	// Logger receives structured lifecycle records. Defaults to the global
	// event logger.
	Logger *events.EventLogger
}

func (c *StoreConfig) applyDefaults() {
	if c.MaxEventsHistory <= 0 {
		c.MaxEventsHistory = config.DefaultMaxEventsHistory
	}
	if c.MaxMetricsHistory <= 0 {
		c.MaxMetricsHistory = config.DefaultMaxMetricsHistory
	}
	if c.ResponseTimeWindow <= 0 {
		c.ResponseTimeWindow = config.DefaultResponseTimeWindow
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = config.DefaultSampleInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = config.DefaultSweepInterval
	}
	if c.PersistInterval <= 0 {
		c.PersistInterval = config.DefaultPersistInterval
	}
	if c.SamplerJoinTimeout <= 0 {
		c.SamplerJoinTimeout = config.DefaultSamplerJoinTimeout
	}
	if c.StatePath == "" {
		c.StatePath = config.DefaultStatePath
	}
	if c.Probe == nil {
		c.Probe = NewSystemProbe("/")
	}
	if c.Logger == nil {
		c.Logger = events.GetGlobalEventLogger()
	}
}

type eventListenerReg struct {
	id       int
	listener EventListener
}

type metricsListenerReg struct {
	id       int
	listener MetricsListener
}

// Store is the single source of truth for monitoring state. All public
// operations are safe for concurrent use; mutation and history append
// execute under one store-wide lock so each observable operation is atomic.
type Store struct {
	cfg StoreConfig

	mu sync.Mutex

	agents        map[string]*AgentState
	conversations map[string]*ConversationState
	aliveChecks   map[string]func() bool
	agentRTCounts map[string]int

	eventLog       *eventRing
	metricsHistory *metricsRing
	responseTimes  *floatWindow
	currentMetrics SystemMetrics
	eventCounters  map[EventType]int64

	eventListeners   []eventListenerReg
	metricsListeners []metricsListenerReg
	nextListenerID   int

	snapshot   snapshotFile
	core       CoreState
	startTime  time.Time
	baseUptime float64 // hours accumulated by previous sessions

	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}

	nowFunc func() time.Time
}

// NewStore creates a Store, recovering the restart count and cumulative
// totals from the previous snapshot file if one exists. The background
// sampler is not started until StartMonitoring.
func NewStore(cfg StoreConfig) *Store {
	cfg.applyDefaults()

	s := &Store{
		cfg:            cfg,
		agents:         make(map[string]*AgentState),
		conversations:  make(map[string]*ConversationState),
		aliveChecks:    make(map[string]func() bool),
		agentRTCounts:  make(map[string]int),
		eventLog:       newEventRing(cfg.MaxEventsHistory),
		metricsHistory: newMetricsRing(cfg.MaxMetricsHistory),
		responseTimes:  newFloatWindow(cfg.ResponseTimeWindow),
		eventCounters:  make(map[EventType]int64),
		snapshot:       snapshotFile{path: cfg.StatePath},
		nowFunc:        time.Now,
	}
	s.startTime = s.nowFunc().UTC()

	hostname, localIP := hostIdentity()
	s.core = CoreState{
		ServiceName: config.ServiceName,
		Version:     config.ServiceVersion,
		StartTime:   s.startTime.Format(time.RFC3339),
		Status:      "running",
		Health:      "healthy",
		LastUpdated: s.startTime.Format(time.RFC3339),
		Hostname:    hostname,
		LocalIP:     localIP,
	}

	// Recover persisted counters. A fresh start (no readable snapshot)
	// begins at restart_count 1.
	if prev, ok := s.snapshot.load(); ok {
		s.core.RestartCount = prev.RestartCount + 1
		s.core.TotalUptimeHours = prev.TotalUptimeHours
		s.baseUptime = prev.TotalUptimeHours
		s.core.TotalAgentsCreated = prev.TotalAgentsCreated
		s.core.TotalConversations = prev.TotalConversations
		s.core.TotalMessagesProcessed = prev.TotalMessagesProcessed
	} else {
		s.core.RestartCount = 1
	}

	return s
}

// StartMonitoring launches the background sampling loop. Calling it while
// already running is a no-op.
func (s *Store) StartMonitoring() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})
	stopCh, stoppedCh := s.stopCh, s.stoppedCh

	s.emitLocked(EventSystemStatus, "state_store", "system", map[string]any{
		"status":              "started",
		"max_events_history":  s.cfg.MaxEventsHistory,
		"max_metrics_history": s.cfg.MaxMetricsHistory,
	}, nil)
	s.mu.Unlock()

	s.cfg.Logger.LogMonitoringStarted(s.cfg.MaxEventsHistory, s.cfg.MaxMetricsHistory)
	go s.run(stopCh, stoppedCh)
}

// StopMonitoring signals the sampling loop to exit, waits for it with a
// bounded timeout, persists a final snapshot marked stopped, and emits a
// shutdown event. Calling it while not running is a no-op.
func (s *Store) StopMonitoring() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	stoppedCh := s.stoppedCh
	s.mu.Unlock()

	// Bounded join: proceed regardless after the timeout so a misbehaving
	// loop cannot hang shutdown.
	select {
	case <-stoppedCh:
	case <-time.After(s.cfg.SamplerJoinTimeout):
	}

	s.mu.Lock()
	s.persistLocked("stopped")
	s.emitLocked(EventSystemStatus, "state_store", "system", map[string]any{
		"status": "stopped",
	}, nil)
	uptime := s.nowFunc().UTC().Sub(s.startTime).Seconds()
	s.mu.Unlock()

	s.cfg.Logger.LogMonitoringStopped(uptime)
}

// Running reports whether the sampling loop is active.
func (s *Store) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// run is the background sampling loop: one tick per SampleInterval probes
// the host, appends a metrics sample, and periodically runs the liveness
// sweep and snapshot persist. Failures degrade to error events; only
// StopMonitoring ends the loop.
func (s *Store) run(stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	lastSweep := s.nowFunc()
	lastPersist := s.nowFunc()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.collect()

			now := s.nowFunc()
			if now.Sub(lastSweep) >= s.cfg.SweepInterval {
				lastSweep = now
				s.sweep()
			}
			if now.Sub(lastPersist) >= s.cfg.PersistInterval {
				lastPersist = now
				s.mu.Lock()
				s.persistLocked("running")
				s.mu.Unlock()
			}
		}
	}
}

// collect performs one sampling tick. The probe runs outside the lock;
// aggregate computation, history append, and listener notification run
// under it.
func (s *Store) collect() {
	sample, err := s.cfg.Probe.Sample()
	if err != nil {
		s.cfg.Logger.LogProbeError(err)
		s.EmitEvent(EventErrorOccurred, "state_store", "metrics", map[string]any{
			"error":   err.Error(),
			"context": "metrics_collection",
		}, nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := SystemMetrics{
		Timestamp:           s.nowFunc().UTC(),
		CPUPercent:          sample.CPUPercent,
		MemoryPercent:       sample.MemoryPercent,
		MemoryUsedMB:        sample.MemoryUsedMB,
		DiskPercent:         sample.DiskPercent,
		Load1:               sample.Load1,
		AverageResponseTime: s.responseTimes.mean(),
	}
	for _, agent := range s.agents {
		if agent.Status == AgentActive {
			metrics.ActiveAgents++
		}
		metrics.TotalMessages += agent.MessageCount
		for _, n := range agent.ToolUsage {
			metrics.TotalToolCalls += n
		}
		metrics.TotalModelCalls += agent.ModelCalls
		metrics.TotalErrors += agent.Errors
		metrics.TotalTokensUsed += agent.TotalTokensUsed
	}
	for _, conv := range s.conversations {
		if conv.Status == ConversationActive {
			metrics.ActiveConversations++
		}
	}

	s.currentMetrics = metrics
	s.metricsHistory.append(metrics)

	for _, reg := range s.metricsListeners {
		notifyMetrics(reg.listener, metrics)
	}
}

// sweep marks agents whose liveness check reports gone as destroyed. Runs
// at most once per SweepInterval. Agents are never removed from the
// registry; history is append-only.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, alive := range s.aliveChecks {
		if checkAlive(alive) {
			continue
		}
		delete(s.aliveChecks, id)
		agent, ok := s.agents[id]
		if !ok || agent.Status == AgentDestroyed {
			continue
		}
		agent.Status = AgentDestroyed
		s.emitLocked(EventAgentDestroyed, id, "agent", map[string]any{
			"name":   agent.Name,
			"reason": "liveness_check_failed",
		}, nil)
		s.cfg.Logger.LogAgentDestroyed(id)
	}
}

// checkAlive runs a caller-supplied liveness callback, treating a panic as
// "gone" rather than letting it escape into the sweep.
func checkAlive(alive func() bool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return alive()
}

// EmitEvent appends a MonitoringEvent, increments the per-type counter, and
// synchronously notifies every registered event listener in registration
// order. Returns the stored event.
func (s *Store) EmitEvent(eventType EventType, sourceID, sourceType string, data, metadata map[string]any) MonitoringEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitLocked(eventType, sourceID, sourceType, data, metadata)
}

func (s *Store) emitLocked(eventType EventType, sourceID, sourceType string, data, metadata map[string]any) MonitoringEvent {
	if data == nil {
		data = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	event := MonitoringEvent{
		ID:         uuid.NewString(),
		Timestamp:  s.nowFunc().UTC(),
		EventType:  eventType,
		SourceID:   sourceID,
		SourceType: sourceType,
		Data:       data,
		Metadata:   metadata,
	}

	s.eventLog.append(event)
	s.eventCounters[eventType]++

	for _, reg := range s.eventListeners {
		notifyEvent(reg.listener, event)
	}
	return event
}

// notifyEvent isolates listener faults: a panicking listener never
// interrupts monitoring or the listeners after it.
func notifyEvent(l EventListener, e MonitoringEvent) {
	defer func() { _ = recover() }()
	l.OnEvent(e)
}

func notifyMetrics(l MetricsListener, m SystemMetrics) {
	defer func() { _ = recover() }()
	l.OnMetrics(m)
}

// AddEventListener registers an event listener and returns a function that
// unregisters it.
func (s *Store) AddEventListener(l EventListener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListenerID
	s.nextListenerID++
	s.eventListeners = append(s.eventListeners, eventListenerReg{id: id, listener: l})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, reg := range s.eventListeners {
			if reg.id == id {
				s.eventListeners = append(s.eventListeners[:i], s.eventListeners[i+1:]...)
				return
			}
		}
	}
}

// AddMetricsListener registers a metrics listener and returns a function
// that unregisters it.
func (s *Store) AddMetricsListener(l MetricsListener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListenerID
	s.nextListenerID++
	s.metricsListeners = append(s.metricsListeners, metricsListenerReg{id: id, listener: l})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, reg := range s.metricsListeners {
			if reg.id == id {
				s.metricsListeners = append(s.metricsListeners[:i], s.metricsListeners[i+1:]...)
				return
			}
		}
	}
}

// RegisterAgent creates an AgentState and emits agent_created. Registering
// an id that already exists overwrites the previous state: the registry is
// observational and re-registration after a respawn is the common case, so
// stale counters are discarded rather than misattributed.
//
// alive, if non-nil, is the liveness contract for the periodic sweep: when
// it returns false the agent is marked destroyed.
func (s *Store) RegisterAgent(id, name string, number int, profile string, alive func() bool) AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc().UTC()
	agent := &AgentState{
		ID:           id,
		Name:         name,
		Number:       number,
		Profile:      profile,
		Status:       AgentIdle,
		CreatedAt:    now,
		LastActivity: now,
		ToolUsage:    make(map[string]int),
	}
	s.agents[id] = agent
	delete(s.agentRTCounts, id)
	if alive != nil {
		s.aliveChecks[id] = alive
	} else {
		delete(s.aliveChecks, id)
	}

	s.emitLocked(EventAgentCreated, id, "agent", map[string]any{
		"name":    name,
		"number":  number,
		"profile": profile,
	}, nil)

	return *agent
}

// UpdateAgentStatus updates an agent's status and current task and emits a
// system_status event. Unknown agent ids still produce the event.
func (s *Store) UpdateAgentStatus(id string, status AgentStatus, currentTask string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent, ok := s.agents[id]; ok {
		agent.Status = status
		agent.LastActivity = s.nowFunc().UTC()
		if currentTask != "" {
			agent.CurrentTask = currentTask
		}
	}

	s.emitLocked(EventSystemStatus, id, "agent", map[string]any{
		"status": string(status),
		"task":   currentTask,
	}, nil)
}

// SetAgentHierarchy links an agent under a superior, updating both sides of
// the relationship when both agents are registered.
func (s *Store) SetAgentHierarchy(agentID, superiorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return
	}
	agent.Superior = superiorID

	superior, ok := s.agents[superiorID]
	if !ok {
		return
	}
	for _, sub := range superior.Subordinates {
		if sub == agentID {
			return
		}
	}
	superior.Subordinates = append(superior.Subordinates, agentID)
}

// RecordMessage records a message exchange, lazily creating the
// conversation on first reference. Observability is not gated on
// registration: the message_sent event is emitted even for unknown agents.
func (s *Store) RecordMessage(agentID, conversationID, messageType string, contentLength int, responseTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc().UTC()
	if agent, ok := s.agents[agentID]; ok {
		agent.MessageCount++
		agent.LastActivity = now
	}

	if _, ok := s.conversations[conversationID]; !ok {
		s.conversations[conversationID] = &ConversationState{
			ID:            conversationID,
			AgentID:       agentID,
			StartedAt:     now,
			LastMessageAt: now,
			Status:        ConversationActive,
			Participants:  []string{agentID},
		}
		s.emitLocked(EventConversationStart, conversationID, "conversation", map[string]any{
			"agent_id": agentID,
		}, nil)
	}
	conv := s.conversations[conversationID]
	conv.MessageCount++
	conv.LastMessageAt = now

	if responseTime > 0 {
		s.responseTimes.push(responseTime)
		s.recordAgentResponseTimeLocked(agentID, responseTime)
	}

	s.emitLocked(EventMessageSent, agentID, "message", map[string]any{
		"conversation_id": conversationID,
		"message_type":    messageType,
		"content_length":  contentLength,
		"response_time":   responseTime,
	}, nil)
}

// EndConversation marks a conversation with a terminal status and emits
// conversation_end. Unknown conversation ids still produce the event.
func (s *Store) EndConversation(conversationID string, status ConversationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[conversationID]; ok {
		conv.Status = status
	}

	s.emitLocked(EventConversationEnd, conversationID, "conversation", map[string]any{
		"status": string(status),
	}, nil)
}

// RecordToolUsage records a tool invocation by an agent.
func (s *Store) RecordToolUsage(agentID, toolName string, executionTime float64, success bool, errorMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent, ok := s.agents[agentID]; ok {
		agent.ToolUsage[toolName]++
		agent.LastActivity = s.nowFunc().UTC()
		if !success {
			agent.Errors++
		}
	}

	s.emitLocked(EventToolExecuted, agentID, "tool", map[string]any{
		"tool_name":      toolName,
		"execution_time": executionTime,
		"success":        success,
		"error_message":  errorMessage,
	}, nil)
}

// RecordModelCall records an LLM call with its token usage and latency.
func (s *Store) RecordModelCall(agentID, modelType, modelName string, tokensUsed int, responseTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent, ok := s.agents[agentID]; ok {
		agent.ModelCalls++
		agent.ContextWindowTokens = tokensUsed
		agent.TotalTokensUsed += tokensUsed
		agent.LastActivity = s.nowFunc().UTC()
	}

	s.responseTimes.push(responseTime)
	s.recordAgentResponseTimeLocked(agentID, responseTime)

	s.emitLocked(EventModelCalled, agentID, "model", map[string]any{
		"model_type":    modelType,
		"model_name":    modelName,
		"tokens_used":   tokensUsed,
		"response_time": responseTime,
	}, nil)
}

// RecordMemoryOperation records a memory operation (embedding, storage,
// retrieval) by an agent.
func (s *Store) RecordMemoryOperation(agentID, operationType string, dataSize int, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent, ok := s.agents[agentID]; ok {
		agent.MemoryOperations++
		agent.LastActivity = s.nowFunc().UTC()
		if !success {
			agent.Errors++
		}
	}

	s.emitLocked(EventMemoryOperation, agentID, "memory", map[string]any{
		"operation_type": operationType,
		"data_size":      dataSize,
		"success":        success,
	}, nil)
}

// RecordExtensionCall records an extension-point invocation.
func (s *Store) RecordExtensionCall(agentID, extensionPoint, extensionName string, executionTime float64) {
	s.EmitEvent(EventExtensionCalled, agentID, "extension", map[string]any{
		"extension_point": extensionPoint,
		"extension_name":  extensionName,
		"execution_time":  executionTime,
	}, nil)
}

// recordAgentResponseTimeLocked folds one observation into the agent's
// rolling average.
func (s *Store) recordAgentResponseTimeLocked(agentID string, rt float64) {
	agent, ok := s.agents[agentID]
	if !ok {
		return
	}
	n := s.agentRTCounts[agentID] + 1
	s.agentRTCounts[agentID] = n
	agent.AverageResponseTime += (rt - agent.AverageResponseTime) / float64(n)
}

// AgentHierarchy returns the superior to subordinates adjacency built from
// current superior links.
func (s *Store) AgentHierarchy() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hierarchyLocked()
}

func (s *Store) hierarchyLocked() map[string][]string {
	hierarchy := make(map[string][]string)
	for id, agent := range s.agents {
		if agent.Superior != "" {
			hierarchy[agent.Superior] = append(hierarchy[agent.Superior], id)
		}
	}
	return hierarchy
}

// RecentEvents returns up to limit most-recent events, newest first,
// optionally restricted to a set of event types. Insertion order is
// authoritative for recency.
func (s *Store) RecentEvents(limit int, types ...EventType) []MonitoringEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventLog.recent(limit, types)
}

// MetricsHistory returns the trailing limit metrics samples, oldest first.
// A limit <= 0 returns the full history.
func (s *Store) MetricsHistory(limit int) []SystemMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsHistory.tail(limit)
}

// CurrentMetrics returns the most recent metrics sample.
func (s *Store) CurrentMetrics() SystemMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMetrics
}

// EventCounts returns a copy of the per-type event counters keyed by the
// string event type.
func (s *Store) EventCounts() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64, len(s.eventCounters))
	for t, n := range s.eventCounters {
		counts[string(t)] = n
	}
	return counts
}

// SystemStatus returns the aggregate status snapshot for boundary adapters.
func (s *Store) SystemStatus() SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64, len(s.eventCounters))
	for t, n := range s.eventCounters {
		counts[string(t)] = n
	}
	status := "stopped"
	if s.running {
		status = "running"
	}
	return SystemStatus{
		UptimeSeconds:    s.nowFunc().UTC().Sub(s.startTime).Seconds(),
		CurrentMetrics:   s.currentMetrics,
		EventCounts:      counts,
		TotalEvents:      s.eventLog.len(),
		MonitoringStatus: status,
	}
}

// AgentSummary returns a copy of the agent and conversation registries.
func (s *Store) AgentSummary() AgentSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := make(map[string]AgentState, len(s.agents))
	active := 0
	for id, agent := range s.agents {
		agents[id] = copyAgent(agent)
		if agent.Status == AgentActive {
			active++
		}
	}
	conversations := make(map[string]ConversationState, len(s.conversations))
	for id, conv := range s.conversations {
		conversations[id] = copyConversation(conv)
	}
	return AgentSummary{
		Agents:             agents,
		TotalAgents:        len(s.agents),
		ActiveAgents:       active,
		AgentHierarchy:     s.hierarchyLocked(),
		TotalConversations: len(s.conversations),
		Conversations:      conversations,
	}
}

// Agent returns a copy of one agent's state.
func (s *Store) Agent(id string) (AgentState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return AgentState{}, false
	}
	return copyAgent(agent), true
}

func copyAgent(agent *AgentState) AgentState {
	out := *agent
	out.ToolUsage = make(map[string]int, len(agent.ToolUsage))
	for k, v := range agent.ToolUsage {
		out.ToolUsage[k] = v
	}
	out.Subordinates = append([]string(nil), agent.Subordinates...)
	return out
}

func copyConversation(conv *ConversationState) ConversationState {
	out := *conv
	out.Participants = append([]string(nil), conv.Participants...)
	return out
}

// CoreStateSnapshot persists the current core state and returns it: a read
// that triggers a write-through, so boundary adapters always see a snapshot
// file at least as fresh as the response.
func (s *Store) CoreStateSnapshot() CoreState {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "stopped"
	if s.running {
		status = "running"
	}
	s.persistLocked(status)
	return s.core
}

// persistLocked refreshes the core state from live registries and writes
// the snapshot file. A write failure degrades to an error_occurred event.
func (s *Store) persistLocked(status string) {
	now := s.nowFunc().UTC()
	session := now.Sub(s.startTime)

	s.core.Status = status
	s.core.LastUpdated = now.Format(time.RFC3339)
	s.core.UptimeSeconds = session.Seconds()
	s.core.TotalUptimeHours = s.baseUptime + session.Hours()

	s.core.CurrentCPUPercent = s.currentMetrics.CPUPercent
	s.core.CurrentMemoryPercent = s.currentMetrics.MemoryPercent
	s.core.CurrentDiskPercent = s.currentMetrics.DiskPercent

	s.core.TotalAgentsCreated = len(s.agents)
	s.core.TotalConversations = len(s.conversations)
	total := 0
	for _, agent := range s.agents {
		total += agent.MessageCount
	}
	s.core.TotalMessagesProcessed = total
	s.core.ErrorCount = int(s.eventCounters[EventErrorOccurred])

	if err := s.snapshot.save(s.core); err != nil {
		s.cfg.Logger.LogSnapshotError(s.cfg.StatePath, err)
		s.emitLocked(EventErrorOccurred, "state_store", "system", map[string]any{
			"error":   "failed to save core state: " + err.Error(),
			"context": "state_file_save",
		}, nil)
	}
}
