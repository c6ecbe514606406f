package node

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"syscall"
	"time"
)

// fakeWorld simulates the process table, signal delivery and the RPC endpoint.
type fakeWorld struct {
	mu sync.Mutex

	live    map[int]bool
	nextPID int
	log     []string

	ignoreTerm  map[int]bool // survives SIGTERM
	ignoreKill  map[int]bool // survives direct SIGKILL, dies to pattern kill
	unkillable  map[int]bool // survives everything
	reusePID    int          // next spawn returns this pid when set
	spawnDies   bool         // spawned process exits immediately
	unhealthy   bool         // processes never answer the probe
	foreignPort bool         // endpoint answers with no matching process
	scanErr     error        // process table cannot be read

	spawns      int
	probeChecks int
	now         time.Time
}

func newFakeWorld(pids ...int) *fakeWorld {
	w := &fakeWorld{
		live:       make(map[int]bool),
		nextPID:    200,
		ignoreTerm: make(map[int]bool),
		ignoreKill: make(map[int]bool),
		unkillable: make(map[int]bool),
		now:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, pid := range pids {
		w.live[pid] = true
	}
	return w
}

func (w *fakeWorld) record(format string, args ...interface{}) {
	w.log = append(w.log, fmt.Sprintf(format, args...))
}

func (w *fakeWorld) livePIDs() []int {
	var out []int
	for pid := range w.live {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

func (w *fakeWorld) Find(_ context.Context, _ string) ([]int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("scan")
	if w.scanErr != nil {
		return nil, w.scanErr
	}
	return w.livePIDs(), nil
}

func sigName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "TERM"
	case syscall.SIGKILL:
		return "KILL"
	}
	return sig.String()
}

func (w *fakeWorld) Send(pid int, sig syscall.Signal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("signal %d %s", pid, sigName(sig))
	if !w.live[pid] || w.unkillable[pid] {
		return nil
	}
	switch sig {
	case syscall.SIGTERM:
		if !w.ignoreTerm[pid] && !w.ignoreKill[pid] {
			delete(w.live, pid)
		}
	case syscall.SIGKILL:
		if !w.ignoreKill[pid] {
			delete(w.live, pid)
		}
	}
	return nil
}

func (w *fakeWorld) KillPattern(_ context.Context, pattern string, sig syscall.Signal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("pkill %s", sigName(sig))
	for pid := range w.live {
		if !w.unkillable[pid] {
			delete(w.live, pid)
		}
	}
	return nil
}

func (w *fakeWorld) Check(_ context.Context, _ string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.probeChecks++
	if w.foreignPort {
		return true
	}
	return !w.unhealthy && len(w.live) > 0
}

func (w *fakeWorld) Spawn(_ context.Context, _ string, _ []string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spawns++
	pid := w.nextPID
	if w.reusePID != 0 {
		pid = w.reusePID
	} else {
		w.nextPID++
	}
	w.record("spawn %d", pid)
	if !w.spawnDies {
		w.live[pid] = true
	}
	return pid, nil
}

func (w *fakeWorld) sleep(_ context.Context, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("sleep %s", d)
	w.now = w.now.Add(d)
}

func (w *fakeWorld) clock() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

func (w *fakeWorld) events() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.log...)
}

func (w *fakeWorld) resetLog() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log = nil
}

func testConfig() Config {
	return Config{
		Binary:             "anvil",
		Host:               "127.0.0.1",
		Port:               8545,
		ChainID:            31337,
		SettleInterval:     2 * time.Second,
		StopSettleInterval: time.Second,
		StartupProbes:      2,
		ProbeInterval:      500 * time.Millisecond,
		StartGrace:         15 * time.Second,
	}
}

func newTestManager(w *fakeWorld, opts ...Option) *Manager {
	resolve := func(context.Context) (string, error) { return "/opt/foundry/bin/anvil", nil }
	opts = append([]Option{WithSleep(w.sleep), WithClock(w.clock)}, opts...)
	return NewManager(testConfig(), w, w, w, w, resolve, opts...)
}
