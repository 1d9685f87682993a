package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/gobstack/gobcore/internal/config"
	"github.com/gobstack/gobcore/internal/events"
	"github.com/gobstack/gobcore/internal/monitor"
)

var (
	// ErrAlreadyRunning is returned by Start when a process is already
	// running or starting. No second process is spawned.
	ErrAlreadyRunning = errors.New("supervisor: process already running or starting")

	// ErrNoProcess is returned by SendSignal when there is no live process.
	ErrNoProcess = errors.New("supervisor: no live process")

	// ErrStartupFailed is returned by Start when the process exits during
	// the stabilization window.
	ErrStartupFailed = errors.New("supervisor: process exited during startup")
)

// EventSink receives lifecycle events from the supervisor. *monitor.Store
// satisfies it. The supervisor holds no other reference into the store.
type EventSink interface {
	EmitEvent(eventType monitor.EventType, sourceID, sourceType string, data, metadata map[string]any) monitor.MonitoringEvent
}

// StateChangeCallback observes state transitions. Invoked synchronously;
// panics are recovered and swallowed, matching the store's listener policy.
type StateChangeCallback func(oldState, newState State)

// OutputCallback observes each captured output line with its source
// ("stdout" or "stderr").
type OutputCallback func(line, source string)

// Config configures a Supervisor. Zero values fall back to the defaults in
// internal/config.
type Config struct {
	// WorkDir is the working directory for the spawned process.
	WorkDir string

	MaxOutputLines int

	StabilizationWait   time.Duration
	ShutdownTimeout     time.Duration
	KillWait            time.Duration
	PollInterval        time.Duration
	HeartbeatStaleAfter time.Duration
	RestartPause        time.Duration
	LoopJoinTimeout     time.Duration

	// AutoRestart schedules a restart after a detected crash.
	AutoRestart bool

	Logger *events.EventLogger
}

func (c *Config) applyDefaults() {
	if c.MaxOutputLines <= 0 {
		c.MaxOutputLines = config.DefaultMaxOutputLines
	}
	if c.StabilizationWait <= 0 {
		c.StabilizationWait = config.DefaultStabilizationWait
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if c.KillWait <= 0 {
		c.KillWait = config.DefaultKillWait
	}
	if c.PollInterval <= 0 {
		c.PollInterval = config.DefaultPollInterval
	}
	if c.HeartbeatStaleAfter <= 0 {
		c.HeartbeatStaleAfter = config.DefaultHeartbeatStaleAfter
	}
	if c.RestartPause <= 0 {
		c.RestartPause = config.DefaultRestartPause
	}
	if c.LoopJoinTimeout <= 0 {
		c.LoopJoinTimeout = config.DefaultLoopJoinTimeout
	}
	if c.Logger == nil {
		c.Logger = events.GetGlobalEventLogger()
	}
}

// procHandle wraps one spawned process. exitCh closes once the process has
// been reaped; exitCode is valid after that. handled makes crash accounting
// idempotent between the Start path and the supervision loop.
type procHandle struct {
	cmd      *exec.Cmd
	exitCh   chan struct{}
	exitCode int
	handled  atomic.Bool
}

func (p *procHandle) exited() bool {
	select {
	case <-p.exitCh:
		return true
	default:
		return false
	}
}

// markHandled returns true for exactly one caller.
func (p *procHandle) markHandled() bool {
	return p.handled.CompareAndSwap(false, true)
}

// ProcessInfo is the read-only process snapshot returned by the Info
// accessor. Runtime fields are populated only while the process is alive.
type ProcessInfo struct {
	State        State  `json:"state"`
	PID          int    `json:"pid,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	StopTime     string `json:"stop_time,omitempty"`
	RestartCount int    `json:"restart_count"`
	CrashCount   int    `json:"crash_count"`
	AutoRestart  bool   `json:"auto_restart"`

	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	MemoryRSSMB   float64 `json:"memory_rss_mb,omitempty"`
	NumThreads    int     `json:"num_threads,omitempty"`
	ProcStatus    string  `json:"proc_status,omitempty"`
}

// Supervisor owns the lifecycle of exactly one externally spawned process.
// One Supervisor supervises one process; no resource is shared between
// instances.
type Supervisor struct {
	cfg  Config
	sink EventSink

	mu            sync.Mutex
	state         State
	proc          *procHandle
	startTime     time.Time
	stopTime      time.Time
	restartCount  int
	crashCount    int
	autoRestart   bool
	lastHeartbeat time.Time
	staleReported bool
	lastCommand   string
	lastArgs      []string

	stdout *outputBuffer
	stderr *outputBuffer

	stateCallbacks  []StateChangeCallback
	outputCallbacks []OutputCallback

	loopStop chan struct{}
	loopDone chan struct{}
}

// New creates a Supervisor in the stopped state. sink receives every
// lifecycle event and must not call back into the Supervisor from a
// listener.
func New(sink EventSink, cfg Config) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		cfg:         cfg,
		sink:        sink,
		state:       StateStopped,
		autoRestart: cfg.AutoRestart,
		stdout:      newOutputBuffer(cfg.MaxOutputLines),
		stderr:      newOutputBuffer(cfg.MaxOutputLines),
	}
}

// changeStateLocked applies a transition, emits a system_status event with
// old/new state and cumulative counters, and notifies callbacks. Callers
// hold s.mu.
func (s *Supervisor) changeStateLocked(newState State) {
	oldState := s.state
	if oldState != newState && !CanTransition(oldState, newState) {
		warnInvalidTransition(oldState, newState)
	}
	s.state = newState

	pid := s.pidLocked()
	if s.sink != nil {
		s.sink.EmitEvent(monitor.EventSystemStatus, "supervisor", "process", map[string]any{
			"old_state":     string(oldState),
			"new_state":     string(newState),
			"pid":           pid,
			"restart_count": s.restartCount,
			"crash_count":   s.crashCount,
		}, nil)
	}
	s.cfg.Logger.LogStateTransition(string(oldState), string(newState), pid, s.restartCount, s.crashCount)

	for _, cb := range s.stateCallbacks {
		invokeStateCallback(cb, oldState, newState)
	}
}

func invokeStateCallback(cb StateChangeCallback, oldState, newState State) {
	defer func() { _ = recover() }()
	cb(oldState, newState)
}

func (s *Supervisor) pidLocked() int {
	if s.proc != nil && s.proc.cmd.Process != nil {
		return s.proc.cmd.Process.Pid
	}
	return 0
}

func (s *Supervisor) emitError(data map[string]any) {
	if s.sink != nil {
		s.sink.EmitEvent(monitor.EventErrorOccurred, "supervisor", "process", data, nil)
	}
}

// Start spawns the process with piped stdout/stderr, launches the
// supervision loop, and waits a short stabilization interval. It returns
// ErrAlreadyRunning (with no state change and no second spawn) when a
// process is already running or starting, ErrStartupFailed when the
// process exits during stabilization, and the spawn error when the process
// could not be launched at all. The call blocks for up to the
// stabilization interval; ctx can cut the wait short.
func (s *Supervisor) Start(ctx context.Context, command string, args ...string) error {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StateStarting {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.changeStateLocked(StateStarting)

	cmd := exec.Command(command, args...)
	cmd.Dir = s.cfg.WorkDir
	// Own process group: shutdown signals reach children too, so they
	// cannot outlive the process and hold the output pipes open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err == nil {
		var stderrPipe io.ReadCloser
		stderrPipe, err = cmd.StderrPipe()
		if err == nil {
			err = cmd.Start()
			if err == nil {
				s.launchLocked(cmd, stdoutPipe, stderrPipe, command, args)
			}
		}
	}
	if err != nil {
		s.changeStateLocked(StateError)
		s.mu.Unlock()
		s.emitError(map[string]any{
			"error":   err.Error(),
			"context": "start_process",
			"command": command,
		})
		return fmt.Errorf("supervisor: spawn %q: %w", command, err)
	}
	proc := s.proc
	s.mu.Unlock()

	// Stabilization: give the process a moment to fail fast.
	select {
	case <-ctx.Done():
	case <-time.After(s.cfg.StabilizationWait):
	case <-proc.exitCh:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if proc.exited() {
		if proc.markHandled() {
			s.crashCount++
			s.changeStateLocked(StateCrashed)
			s.emitError(map[string]any{
				"event":       "process_crashed",
				"context":     "startup",
				"exit_code":   proc.exitCode,
				"crash_count": s.crashCount,
			})
			s.cfg.Logger.LogProcessCrashed(proc.exitCode, s.crashCount, s.autoRestart)
		}
		return ErrStartupFailed
	}
	s.changeStateLocked(StateRunning)
	return nil
}

// launchLocked wires up the freshly started process: output scanners, the
// exit reaper, and the supervision loop. Callers hold s.mu.
func (s *Supervisor) launchLocked(cmd *exec.Cmd, stdoutPipe, stderrPipe io.ReadCloser, command string, args []string) {
	now := time.Now().UTC()
	s.startTime = now
	s.stopTime = time.Time{}
	s.lastHeartbeat = now
	s.staleReported = false
	s.lastCommand = command
	s.lastArgs = append([]string(nil), args...)

	proc := &procHandle{cmd: cmd, exitCh: make(chan struct{})}
	s.proc = proc

	var scanners sync.WaitGroup
	scanners.Add(2)
	go s.scanOutput(stdoutPipe, SourceStdout, &scanners)
	go s.scanOutput(stderrPipe, SourceStderr, &scanners)

	// Reap only after both pipes hit EOF: Wait closes the pipes, so the
	// scanners must finish first.
	go func() {
		scanners.Wait()
		err := cmd.Wait()
		proc.exitCode = exitCode(cmd, err)
		close(proc.exitCh)
	}()

	s.loopStop = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.supervise(proc, s.loopStop, s.loopDone)
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return cmd.ProcessState.ExitCode()
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		return -1
	}
}

// scanOutput drains one stream into its bounded buffer, firing output
// callbacks per line.
func (s *Supervisor) scanOutput(r io.Reader, source string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		s.recordOutput(line, source)
	}
}

func (s *Supervisor) recordOutput(line, source string) {
	if source == SourceStderr {
		s.stderr.append(line)
	} else {
		s.stdout.append(line)
	}

	s.mu.Lock()
	callbacks := append([]OutputCallback(nil), s.outputCallbacks...)
	s.mu.Unlock()
	for _, cb := range callbacks {
		invokeOutputCallback(cb, line, source)
	}
}

func invokeOutputCallback(cb OutputCallback, line, source string) {
	defer func() { _ = recover() }()
	cb(line, source)
}

// supervise is the per-process supervision loop: it refreshes the
// heartbeat while the process is alive, flags a stale heartbeat (event
// only, non-fatal), and hands exit to crash/clean-exit handling. Each
// tick refreshes the heartbeat it checks, so staleness surfaces only
// when ticks themselves are delayed or starved.
func (s *Supervisor) supervise(proc *procHandle, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-proc.exitCh:
			s.handleExit(proc)
			return
		case <-ticker.C:
			s.mu.Lock()
			stale := time.Since(s.lastHeartbeat)
			if stale > s.cfg.HeartbeatStaleAfter && !s.staleReported {
				s.staleReported = true
				pid := s.pidLocked()
				lastBeat := s.lastHeartbeat.Format(time.RFC3339)
				s.mu.Unlock()
				s.emitError(map[string]any{
					"issue":          "process_hanging",
					"pid":            pid,
					"stale_seconds":  stale.Seconds(),
					"last_heartbeat": lastBeat,
				})
				s.cfg.Logger.LogHeartbeatStale(pid, stale.Seconds())
				continue
			}
			s.lastHeartbeat = time.Now().UTC()
			s.mu.Unlock()
		}
	}
}

// handleExit classifies a process exit. An exit while the supervisor
// requested stopping is expected and left for Stop to finalize; anything
// else is a crash.
func (s *Supervisor) handleExit(proc *procHandle) {
	if !proc.markHandled() {
		return
	}

	s.mu.Lock()
	if s.state == StateStopping {
		// Stop owns the transition to stopped.
		s.mu.Unlock()
		return
	}
	s.crashCount++
	s.changeStateLocked(StateCrashed)
	crashes := s.crashCount
	auto := s.autoRestart
	command, args := s.lastCommand, append([]string(nil), s.lastArgs...)
	s.mu.Unlock()

	s.emitError(map[string]any{
		"event":       "process_crashed",
		"exit_code":   proc.exitCode,
		"crash_count": crashes,
	})
	s.cfg.Logger.LogProcessCrashed(proc.exitCode, crashes, auto)

	if auto {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			_ = s.Restart(ctx, command, args...)
		}()
	}
}

// Stop terminates the process: graceful signal (or immediate kill when
// force is set), bounded wait, forced-kill escalation, another bounded
// wait. Even if the process cannot be reaped the supervisor transitions to
// stopped so the lifecycle cannot get stuck; that failure is reported via
// the returned error and an error event. A stop when already stopped (or
// already stopping) is a no-op success.
func (s *Supervisor) Stop(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.mu.Unlock()
		return nil
	}
	s.changeStateLocked(StateStopping)
	proc := s.proc
	s.mu.Unlock()

	var stopErr error
	if proc != nil && !proc.exited() {
		sig := syscall.SIGTERM
		if force {
			sig = syscall.SIGKILL
		}
		if err := signalGroup(proc, sig); err != nil && !proc.exited() {
			s.emitError(map[string]any{
				"error":   err.Error(),
				"context": "stop_process",
				"signal":  sig.String(),
			})
		}

		if !waitExit(ctx, proc, s.cfg.ShutdownTimeout) {
			// Graceful wait expired; escalate.
			_ = signalGroup(proc, syscall.SIGKILL)
			if !waitExit(ctx, proc, s.cfg.KillWait) {
				stopErr = fmt.Errorf("supervisor: process %d not reaped after forced kill", proc.cmd.Process.Pid)
				s.emitError(map[string]any{
					"error":   stopErr.Error(),
					"context": "stop_process",
				})
			}
		}
	}
	if proc != nil {
		// Claim the exit so the supervision loop does not count it as a crash.
		proc.markHandled()
	}

	s.mu.Lock()
	loopStop, loopDone := s.loopStop, s.loopDone
	s.loopStop = nil
	s.mu.Unlock()
	if loopStop != nil {
		close(loopStop)
	}
	if loopDone != nil {
		select {
		case <-loopDone:
		case <-time.After(s.cfg.LoopJoinTimeout):
		}
	}

	s.mu.Lock()
	s.stopTime = time.Now().UTC()
	s.changeStateLocked(StateStopped)
	s.mu.Unlock()
	return stopErr
}

// signalGroup signals the whole process group, falling back to the process
// itself when the group is gone.
func signalGroup(proc *procHandle, sig syscall.Signal) error {
	if err := syscall.Kill(-proc.cmd.Process.Pid, sig); err != nil {
		return proc.cmd.Process.Signal(sig)
	}
	return nil
}

func waitExit(ctx context.Context, proc *procHandle, timeout time.Duration) bool {
	select {
	case <-proc.exitCh:
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return proc.exited()
	}
}

// Restart increments the restart count unconditionally, stops the process
// if not already stopped, pauses briefly, and starts it again. An empty
// command reuses the previous one. Restart and crash counts are
// independent: only restarts (explicit or auto) increment the restart
// count.
func (s *Supervisor) Restart(ctx context.Context, command string, args ...string) error {
	s.mu.Lock()
	s.restartCount++
	state := s.state
	if command == "" {
		command = s.lastCommand
		args = append([]string(nil), s.lastArgs...)
	}
	s.mu.Unlock()

	if state != StateStopped {
		if err := s.Stop(ctx, false); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.RestartPause):
	}

	return s.Start(ctx, command, args...)
}

// SendSignal forwards an OS signal to the live process. Fails with
// ErrNoProcess when there is no process or it has already exited.
func (s *Supervisor) SendSignal(sig syscall.Signal) error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc == nil || proc.exited() {
		return ErrNoProcess
	}
	if err := proc.cmd.Process.Signal(sig); err != nil {
		s.emitError(map[string]any{
			"error":   err.Error(),
			"context": "send_signal",
			"signal":  sig.String(),
		})
		return err
	}
	return nil
}

// Info returns a snapshot of the supervised process, enriched with runtime
// resource usage while the process is alive.
func (s *Supervisor) Info() ProcessInfo {
	s.mu.Lock()
	info := ProcessInfo{
		State:        s.state,
		PID:          s.pidLocked(),
		RestartCount: s.restartCount,
		CrashCount:   s.crashCount,
		AutoRestart:  s.autoRestart,
	}
	if !s.startTime.IsZero() {
		info.StartTime = s.startTime.Format(time.RFC3339)
	}
	if !s.stopTime.IsZero() {
		info.StopTime = s.stopTime.Format(time.RFC3339)
	}
	proc := s.proc
	startTime := s.startTime
	running := s.state == StateRunning
	s.mu.Unlock()

	if running && proc != nil && !proc.exited() {
		info.UptimeSeconds = time.Since(startTime).Seconds()
		if p, err := process.NewProcess(int32(info.PID)); err == nil {
			if cpu, err := p.CPUPercent(); err == nil {
				info.CPUPercent = cpu
			}
			if mem, err := p.MemoryInfo(); err == nil && mem != nil {
				info.MemoryRSSMB = float64(mem.RSS) / 1024 / 1024
			}
			if threads, err := p.NumThreads(); err == nil {
				info.NumThreads = int(threads)
			}
			if status, err := p.Status(); err == nil {
				info.ProcStatus = strings.Join(status, ",")
			}
		}
	}
	return info
}

// RecentOutput returns the trailing lines of the requested source(s),
// keyed by stream name. lines <= 0 returns the whole buffer.
func (s *Supervisor) RecentOutput(lines int, source string) map[string][]string {
	result := make(map[string][]string)
	if source == SourceStdout || source == SourceBoth || source == "" {
		result[SourceStdout] = s.stdout.recent(lines)
	}
	if source == SourceStderr || source == SourceBoth || source == "" {
		result[SourceStderr] = s.stderr.recent(lines)
	}
	return result
}

// ClearOutputBuffers resets both output buffers.
func (s *Supervisor) ClearOutputBuffers() {
	s.stdout.clear()
	s.stderr.clear()
}

// AddStateChangeCallback registers a callback for state transitions.
func (s *Supervisor) AddStateChangeCallback(cb StateChangeCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateCallbacks = append(s.stateCallbacks, cb)
}

// AddOutputCallback registers a callback fired once per captured line.
func (s *Supervisor) AddOutputCallback(cb OutputCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputCallbacks = append(s.outputCallbacks, cb)
}

// SetAutoRestart toggles the crash auto-restart policy.
func (s *Supervisor) SetAutoRestart(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRestart = enabled
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the process is in the running state and alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning && s.proc != nil && !s.proc.exited()
}

// RestartCount returns the cumulative restart count.
func (s *Supervisor) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartCount
}

// CrashCount returns the cumulative crash count.
func (s *Supervisor) CrashCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crashCount
}
