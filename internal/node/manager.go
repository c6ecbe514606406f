package node

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"ledgerdev/internal/logging"
)

// Config describes the daemon and the lifecycle timings.
type Config struct {
	Binary    string // program name used in match patterns
	Host      string
	Port      int
	ChainID   uint64
	ExtraArgs []string

	// SettleInterval is the wait after spawning before the first health probe.
	SettleInterval time.Duration

	// StopSettleInterval is the wait after each termination signal.
	StopSettleInterval time.Duration

	// StartupProbes bounds extra probes while the daemon is still starting.
	StartupProbes int
	ProbeInterval time.Duration

	// StartGrace is how long after a spawn an unhealthy daemon counts as starting.
	StartGrace time.Duration
}

// Endpoint returns the daemon's RPC URL.
func (c Config) Endpoint() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// LifecycleEvent is emitted after every start, stop and restart.
type LifecycleEvent struct {
	Operation string
	Outcome   string
	PIDs      []int
	Detail    string
	Timestamp time.Time
}

// BinaryResolver supplies the daemon's absolute path.
type BinaryResolver func(ctx context.Context) (string, error)

// Manager implements start, stop and restart over OS-observed state.
type Manager struct {
	cfg      Config
	scanner  ProcessScanner
	signaler Signaler
	probe    HealthProbe
	spawner  Spawner
	resolve  BinaryResolver

	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time

	mu        sync.Mutex
	lastSpawn time.Time
	onEvent   func(LifecycleEvent)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithSleep replaces the settle-interval sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(m *Manager) { m.sleep = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option { return func(m *Manager) { m.now = fn } }

// WithEventHandler receives a LifecycleEvent after each operation.
func WithEventHandler(fn func(LifecycleEvent)) Option {
	return func(m *Manager) { m.onEvent = fn }
}

// NewManager wires the lifecycle manager to its collaborators.
func NewManager(cfg Config, scanner ProcessScanner, signaler Signaler, probe HealthProbe, spawner Spawner, resolve BinaryResolver, opts ...Option) *Manager {
	if cfg.Binary == "" {
		cfg.Binary = "anvil"
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	m := &Manager{
		cfg:      cfg,
		scanner:  scanner,
		signaler: signaler,
		probe:    probe,
		spawner:  spawner,
		resolve:  resolve,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Endpoint returns the probed RPC URL.
func (m *Manager) Endpoint() string { return m.cfg.Endpoint() }

// ScopedPattern matches the daemon bound to the configured port.
func (m *Manager) ScopedPattern() string {
	return fmt.Sprintf(`(^|/)%s( .*)? --port %d( |$)`, regexp.QuoteMeta(m.cfg.Binary), m.cfg.Port)
}

// BroadPattern matches any instance of the daemon program.
func (m *Manager) BroadPattern() string {
	return fmt.Sprintf(`(^|/)%s( |$)`, regexp.QuoteMeta(m.cfg.Binary))
}

// Args returns the daemon command line after the program.
func (m *Manager) Args() []string {
	args := []string{
		"--host", m.cfg.Host,
		"--port", strconv.Itoa(m.cfg.Port),
		"--chain-id", strconv.FormatUint(m.cfg.ChainID, 10),
	}
	return append(args, m.cfg.ExtraArgs...)
}

// Status re-reads the process table and probes the endpoint.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	pids, err := m.scanner.Find(ctx, m.ScopedPattern())
	if err != nil {
		return Status{}, fmt.Errorf("scan daemon processes: %w", err)
	}
	healthy := m.probe.Check(ctx, m.Endpoint())
	return Status{
		State:     m.derive(pids, healthy),
		PIDs:      pids,
		Healthy:   healthy,
		Endpoint:  m.Endpoint(),
		CheckedAt: m.now(),
	}, nil
}

func (m *Manager) derive(pids []int, healthy bool) State {
	switch {
	case healthy:
		return StateHealthy
	case len(pids) == 0:
		return StateStopped
	case m.withinStartGrace():
		return StateStarting
	default:
		return StateUnreachable
	}
}

func (m *Manager) withinStartGrace() bool {
	m.mu.Lock()
	last := m.lastSpawn
	m.mu.Unlock()
	return !last.IsZero() && m.now().Sub(last) < m.cfg.StartGrace
}

func (m *Manager) markSpawn() {
	m.mu.Lock()
	m.lastSpawn = m.now()
	m.mu.Unlock()
}

func (m *Manager) emit(ev LifecycleEvent) {
	ev.Timestamp = m.now()
	m.mu.Lock()
	fn := m.onEvent
	m.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// StartReport describes a successful start.
type StartReport struct {
	AlreadyRunning bool     `json:"already_running"`
	SpawnedPID     int      `json:"spawned_pid,omitempty"`
	PIDs           []int    `json:"pids"`
	State          State    `json:"state"`
	Probes         int      `json:"probes"`
	Notes          []string `json:"notes,omitempty"`
}

// Start guarantees a daemon is running. An existing matching process makes it a no-op.
func (m *Manager) Start(ctx context.Context) (*StartReport, error) {
	rep, err := m.start(ctx)
	if err != nil {
		m.emit(LifecycleEvent{Operation: "start", Outcome: "error", Detail: err.Error()})
		return nil, err
	}
	outcome := "started"
	if rep.AlreadyRunning {
		outcome = "already-running"
	}
	m.emit(LifecycleEvent{Operation: "start", Outcome: outcome, PIDs: rep.PIDs})
	return rep, nil
}

func (m *Manager) start(ctx context.Context) (*StartReport, error) {
	pids, err := m.scanner.Find(ctx, m.ScopedPattern())
	if err != nil {
		return nil, fmt.Errorf("scan daemon processes: %w", err)
	}
	if len(pids) > 0 {
		healthy := m.probe.Check(ctx, m.Endpoint())
		logging.Node("daemon already running: pids=%v healthy=%v", pids, healthy)
		return &StartReport{AlreadyRunning: true, PIDs: pids, State: m.derive(pids, healthy)}, nil
	}

	if m.probe.Check(ctx, m.Endpoint()) {
		logging.NodeWarn("%s answers without a matching process", m.Endpoint())
		return &StartReport{
			AlreadyRunning: true,
			State:          StateHealthy,
			Notes:          []string{"endpoint is served by a process outside the match pattern"},
		}, nil
	}

	path, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}

	spawned, err := m.spawner.Spawn(ctx, path, m.Args())
	if err != nil {
		return nil, &StartError{Reason: "spawn failed", Err: err}
	}
	m.markSpawn()
	logging.Node("spawned daemon pid=%d on %s", spawned, m.Endpoint())

	m.sleep(ctx, m.cfg.SettleInterval)

	var last Status
	for probe := 0; probe <= m.cfg.StartupProbes; probe++ {
		if probe > 0 {
			m.sleep(ctx, m.cfg.ProbeInterval)
		}
		last, err = m.Status(ctx)
		if err != nil {
			return nil, &StartError{Reason: "rescan failed", SpawnedPID: spawned, Err: err}
		}
		if last.State == StateHealthy && last.Running() {
			return &StartReport{SpawnedPID: spawned, PIDs: last.PIDs, State: last.State, Probes: probe + 1}, nil
		}
		if last.State == StateStopped {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	reason := "daemon exited after spawn"
	switch {
	case last.Running():
		reason = fmt.Sprintf("daemon not healthy (%s)", last.State)
	case last.Healthy:
		reason = "endpoint healthy but no matching process appeared"
	}
	logging.NodeError("start failed: %s pids=%v", reason, last.PIDs)
	return nil, &StartError{Reason: reason, SpawnedPID: spawned, PIDs: last.PIDs, State: last.State}
}

// Stop terminates every matching process. With none running it sends no signal.
// The escalation always runs to completion; ctx cancellation does not interrupt it.
func (m *Manager) Stop(ctx context.Context) (*StopReport, error) {
	rep, err := m.stop(context.WithoutCancel(ctx))
	if err != nil {
		m.emit(LifecycleEvent{Operation: "stop", Outcome: "error", PIDs: rep.Survivors, Detail: err.Error()})
		return rep, err
	}
	outcome := "stopped"
	if rep.AlreadyStopped {
		outcome = "already-stopped"
	}
	m.emit(LifecycleEvent{Operation: "stop", Outcome: outcome, PIDs: rep.InitialPIDs})
	return rep, nil
}

func (m *Manager) stop(ctx context.Context) (*StopReport, error) {
	pids, err := m.scanner.Find(ctx, m.ScopedPattern())
	if err != nil {
		return &StopReport{}, fmt.Errorf("scan daemon processes: %w", err)
	}
	rep := &StopReport{InitialPIDs: pids}
	if len(pids) == 0 {
		rep.AlreadyStopped = true
		return rep, nil
	}

	logging.Node("stopping daemon pids=%v", pids)
	esc := &escalation{m: m, survivors: pids, report: rep}
	esc.run(ctx, m.stopSequence())

	if len(esc.survivors) > 0 {
		rep.Survivors = esc.survivors
		logging.NodeError("stop left survivors %v", esc.survivors)
		return rep, &KillFailureError{Survivors: esc.survivors}
	}
	return rep, nil
}

// RestartReport describes a restart.
type RestartReport struct {
	PreviousPIDs []int         `json:"previous_pids"`
	Stops        []*StopReport `json:"stops"`
	Start        *StartReport  `json:"start"`
	NewPIDs      []int         `json:"new_pids"`

	// Anomalies are non-fatal, e.g. a new PID that was already running before.
	Anomalies []string `json:"anomalies,omitempty"`
}

// Restart stops (with one extra pass for survivors), verifies the endpoint went
// quiet, then starts a fresh daemon.
func (m *Manager) Restart(ctx context.Context) (*RestartReport, error) {
	rep, err := m.restart(ctx)
	if err != nil {
		m.emit(LifecycleEvent{Operation: "restart", Outcome: "error", Detail: err.Error()})
		return rep, err
	}
	outcome := "restarted"
	if len(rep.Anomalies) > 0 {
		outcome = "anomaly"
	}
	m.emit(LifecycleEvent{Operation: "restart", Outcome: outcome, PIDs: rep.NewPIDs})
	return rep, nil
}

func (m *Manager) restart(ctx context.Context) (*RestartReport, error) {
	previous, err := m.scanner.Find(ctx, m.ScopedPattern())
	if err != nil {
		return nil, fmt.Errorf("scan daemon processes: %w", err)
	}
	rep := &RestartReport{PreviousPIDs: previous}

	stopCtx := context.WithoutCancel(ctx)
	first, err := m.stop(stopCtx)
	rep.Stops = append(rep.Stops, first)
	if err != nil {
		logging.NodeWarn("first stop pass left survivors, running second pass: %v", err)
		second, err := m.stop(stopCtx)
		rep.Stops = append(rep.Stops, second)
		if err != nil {
			return rep, err
		}
	}

	if m.probe.Check(ctx, m.Endpoint()) {
		survivors, _ := m.scanner.Find(ctx, m.ScopedPattern())
		return rep, &KillFailureError{Survivors: survivors, StillHealthy: true}
	}

	started, err := m.start(ctx)
	if err != nil {
		return rep, err
	}
	rep.Start = started
	rep.NewPIDs = started.PIDs

	prev := make(map[int]struct{}, len(previous))
	for _, pid := range previous {
		prev[pid] = struct{}{}
	}
	for _, pid := range started.PIDs {
		if _, ok := prev[pid]; ok {
			rep.Anomalies = append(rep.Anomalies, fmt.Sprintf("pid %d was running before the restart", pid))
		}
	}
	if started.AlreadyRunning {
		rep.Anomalies = append(rep.Anomalies, "another actor started the daemon during the restart")
	}
	if len(rep.Anomalies) > 0 {
		logging.NodeWarn("restart anomalies: %v", rep.Anomalies)
	}
	return rep, nil
}
