package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mod-net/stack/internal/config"
	"github.com/mod-net/stack/internal/journal"
	"github.com/mod-net/stack/internal/liveness"
	"github.com/mod-net/stack/internal/lock"
	"github.com/mod-net/stack/internal/metrics"
	"github.com/mod-net/stack/internal/probe"
	"github.com/mod-net/stack/internal/registry"
	"github.com/mod-net/stack/internal/supervisor"
)

// Orchestrator composes the registry, lock coordinator, supervisor and
// health probes into the stack's lifecycle operations. All operations are
// serialized through one mutex: the model is single caller at a time with
// bounded blocking, there is no background completion.
type Orchestrator struct {
	cfg    config.Config
	reg    *registry.Registry
	sup    *supervisor.Supervisor
	locks  *lock.Coordinator
	oracle liveness.Oracle
	jour   journal.Store
	log    *slog.Logger

	mu     sync.Mutex
	states map[string]*serviceState
	held   map[string]*lock.Handle // singleton lock handles we currently hold
}

// New wires an orchestrator from explicit configuration. jour may be nil.
func New(cfg config.Config, jour journal.Store, log *slog.Logger) (*Orchestrator, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if jour == nil {
		jour = journal.Nop{}
	}
	oracle := liveness.New()
	o := &Orchestrator{
		cfg:    cfg,
		reg:    reg,
		sup:    supervisor.New(oracle, cfg.LogConfig(), log),
		locks:  lock.New(oracle, cfg.EvictGrace),
		oracle: oracle,
		jour:   jour,
		log:    log,
		states: make(map[string]*serviceState),
		held:   make(map[string]*lock.Handle),
	}
	lockOwner := make(map[string]string) // lock path -> service name
	for _, name := range reg.Names() {
		o.states[name] = &serviceState{state: StateStopped}
		if d, err := reg.Describe(name); err == nil && d.Singleton() {
			lockOwner[d.LockPath] = name
		}
	}
	o.locks.OnStaleRecovered = func(path string, pid int) {
		svc := lockOwner[path]
		log.Info("removed stale lock marker", "service", svc, "lock", path, "stale_pid", pid)
		metrics.IncStaleLockRecovered(svc)
	}
	o.locks.OnEvicted = func(path string, pid int, forced bool) {
		svc := lockOwner[path]
		log.Warn("evicted live lock holder", "service", svc, "lock", path, "pid", pid, "forced", forced)
		metrics.IncLockEviction(svc, forced)
	}
	return o, nil
}

// Registry exposes the immutable service table.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Supervisor exposes the process control surface (logs streaming).
func (o *Orchestrator) Supervisor() *supervisor.Supervisor { return o.sup }

// StartOne starts a single service and blocks until it is confirmed
// running, its health check times out, or the lock wait expires.
func (o *Orchestrator) StartOne(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startLocked(name)
}

// StopOne stops a single service, escalating to a forced kill after the
// configured grace window.
func (o *Orchestrator) StopOne(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopLocked(name)
}

// RestartOne is stop-then-start as one serialized operation.
func (o *Orchestrator) RestartOne(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.stopLocked(name); err != nil {
		return err
	}
	return o.startLocked(name)
}

// StartAll starts every service in dependency order. A failure is
// recorded and the iteration continues: a degraded stack still has
// operational value.
func (o *Orchestrator) StartAll() *BulkResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := newBulkResult()
	for _, name := range o.reg.DependencyOrder() {
		res.record(name, o.startLocked(name))
	}
	return res
}

// StopAll stops every service in reverse dependency order, best-effort.
func (o *Orchestrator) StopAll() *BulkResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := newBulkResult()
	for _, name := range o.reg.ReverseOrder() {
		res.record(name, o.stopLocked(name))
	}
	return res
}

// StatusAll re-probes every service on demand and returns fresh statuses
// in dependency order.
func (o *Orchestrator) StatusAll() []ServiceStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ServiceStatus, 0, len(o.states))
	for _, name := range o.reg.DependencyOrder() {
		out = append(out, o.statusLocked(name))
	}
	return out
}

// Status returns one service's fresh status.
func (o *Orchestrator) Status(name string) (ServiceStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.reg.Describe(name); err != nil {
		return ServiceStatus{}, err
	}
	return o.statusLocked(name), nil
}

// CheckResult is one service's one-shot connectivity check outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Target  string `json:"target"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// CheckAll probes every service's health endpoint exactly once. It does
// not touch processes or recorded states; the test subcommand uses it.
func (o *Orchestrator) CheckAll() []CheckResult {
	out := make([]CheckResult, 0, 4)
	for _, name := range o.reg.DependencyOrder() {
		d, err := o.reg.Describe(name)
		if err != nil {
			continue
		}
		out = append(out, o.checkOne(d))
	}
	return out
}

// Check probes one service's health endpoint exactly once.
func (o *Orchestrator) Check(name string) (CheckResult, error) {
	d, err := o.reg.Describe(name)
	if err != nil {
		return CheckResult{}, err
	}
	return o.checkOne(d), nil
}

func (o *Orchestrator) checkOne(d registry.Descriptor) CheckResult {
	r := CheckResult{Name: d.Name, Target: d.Health.Target()}
	if err := probe.Check(d.Health); err != nil {
		r.Detail = err.Error()
	} else {
		r.Healthy = true
	}
	return r
}

// --- internals, all called with o.mu held ---

func (o *Orchestrator) startLocked(name string) error {
	d, err := o.reg.Describe(name)
	if err != nil {
		return err
	}
	st := o.states[name]

	// Already running and healthy: no-op, no duplicate spawn.
	if pid, ok := o.sup.Adopt(d); ok {
		if probe.Check(d.Health) == nil {
			o.transition(name, st, StateRunning, pid, "")
			st.lastHealthy = true
			st.lastProbe = time.Now()
			return nil
		}
	}

	o.transition(name, st, StateStarting, 0, "")
	st.lastStart = time.Now()

	if d.Singleton() && o.held[name] == nil {
		h, err := o.locks.Acquire(d.LockPath, o.cfg.LockWait)
		if err != nil {
			o.transition(name, st, StateStopped, 0, err.Error())
			metrics.IncServiceStartFailure(name, "lock")
			return fmt.Errorf("start %s: %w", name, err)
		}
		o.held[name] = h
	}

	pid, err := o.sup.Start(d)
	if err != nil {
		o.releaseLock(name)
		o.transition(name, st, StateFailed, 0, err.Error())
		metrics.IncServiceStartFailure(name, "spawn")
		return fmt.Errorf("start %s: %w: %v", name, ErrProcessStartFailure, err)
	}

	healthy := probe.Poll(d.Health)
	st.lastProbe = time.Now()
	st.lastHealthy = healthy
	if !healthy {
		// The process is left running: a slow starter that eventually
		// becomes healthy should not be torn down speculatively.
		o.transition(name, st, StateFailed, pid, "health check timed out")
		metrics.IncServiceStartFailure(name, "health")
		return fmt.Errorf("start %s: %w after %s", name, ErrHealthTimeout, d.Health.Timeout)
	}
	o.transition(name, st, StateRunning, pid, "")
	metrics.IncServiceStart(name)
	return nil
}

func (o *Orchestrator) stopLocked(name string) error {
	d, err := o.reg.Describe(name)
	if err != nil {
		return err
	}
	st := o.states[name]

	// Pick up anything a previous run left behind before stopping it.
	_, tracked := o.sup.Adopt(d)

	o.transition(name, st, StateStopping, 0, "")
	var res supervisor.StopResult
	if tracked {
		res, err = o.sup.Stop(name, o.cfg.StopGrace)
		if err != nil && !errors.Is(err, supervisor.ErrNotManaged) {
			o.transition(name, st, StateFailed, 0, err.Error())
			return fmt.Errorf("stop %s: %w", name, err)
		}
	}
	o.releaseLock(name)
	detail := ""
	if res.Forced {
		detail = "graceful signal ignored, forced kill"
	}
	o.transitionForced(name, st, StateStopped, 0, detail, res.Forced)
	if res.Stopped {
		metrics.IncServiceStop(name, res.Forced)
	}
	return nil
}

func (o *Orchestrator) statusLocked(name string) ServiceStatus {
	d, _ := o.reg.Describe(name)
	st := o.states[name]
	ps := o.sup.Status(name)

	healthy := false
	if ps.Running {
		healthy = probe.Check(d.Health) == nil
	}
	st.lastProbe = time.Now()
	st.lastHealthy = healthy

	// Reconcile recorded state with observed reality: a crash while the
	// orchestrator was idle shows up here.
	switch {
	case ps.Running && healthy && st.state != StateStarting:
		st.state = StateRunning
	case !ps.Running && st.state == StateRunning:
		st.state = StateFailed
		st.detail = "process exited"
	}

	return ServiceStatus{
		Name:      name,
		State:     st.state,
		PID:       ps.PID,
		Healthy:   healthy,
		Adopted:   ps.Adopted,
		Singleton: d.Singleton(),
		LastProbe: st.lastProbe,
		LastStart: st.lastStart,
		Detail:    st.detail,
	}
}

func (o *Orchestrator) releaseLock(name string) {
	if h := o.held[name]; h != nil {
		if err := o.locks.Release(h); err != nil {
			o.log.Warn("lock release failed", "service", name, "lock", h.Path, "err", err)
		}
		delete(o.held, name)
	}
}

// transition records a state change in memory, the journal and metrics.
func (o *Orchestrator) transition(name string, st *serviceState, to State, pid int, detail string) {
	o.transitionForced(name, st, to, pid, detail, false)
}

func (o *Orchestrator) transitionForced(name string, st *serviceState, to State, pid int, detail string, forced bool) {
	if st.state == to && detail == st.detail {
		return
	}
	o.log.Info("service state", "service", name, "from", st.state, "to", to, "pid", pid, "detail", detail)
	st.state = to
	st.detail = detail
	metrics.SetServiceState(name, string(to))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = o.jour.Append(ctx, journal.Event{
		Service: name,
		PID:     pid,
		State:   string(to),
		Forced:  forced,
		Detail:  detail,
		At:      time.Now().UTC(),
	})
}
