// Package watchdog keeps the external chat client process alive. It polls
// liveness by process name, restarts the process when it is dead or stuck
// before login, and gives up after a bounded number of attempts.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/neilberkman/groupsum/internal/core/process"
	"github.com/neilberkman/groupsum/internal/core/retry"
)

var (
	// ErrRetriesExhausted is carried by the fatal health event.
	ErrRetriesExhausted = errors.New("watchdog: restart attempts exhausted")

	// ErrNotRunning means the process was not found after launch.
	ErrNotRunning = errors.New("watchdog: process not running after launch")
)

type State string

const (
	StateStopped    State = "stopped"
	StatePolling    State = "polling"
	StateAlive      State = "alive"
	StateDead       State = "dead"
	StateRestarting State = "restarting"
	StateFatal      State = "fatal"
)

// HealthEvent is emitted on every state transition.
type HealthEvent struct {
	State   State
	Retries int
	Err     error
	At      time.Time
}

type Stage string

const (
	StageSpawn  Stage = "spawn"
	StageVerify Stage = "verify"
	StageFixup  Stage = "fixup"
)

// RestartError reports which step of a restart failed.
type RestartError struct {
	Stage Stage
	Err   error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("watchdog: restart failed at %s: %v", e.Stage, e.Err)
}

func (e *RestartError) Unwrap() error { return e.Err }

type Config struct {
	ProcessName      string
	Executable       string
	FixupInterpreter string
	FixupScript      string // skipped when empty
	PollInterval     time.Duration
	MaxRetries       int
	LoginTimeout     time.Duration
	SettleDelay      time.Duration // after kill
	StartupDelay     time.Duration // after spawn
}

type Option func(*Watchdog)

func WithClock(c clock.Clock) Option { return func(w *Watchdog) { w.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(w *Watchdog) { w.logger = l } }

// WithRetryPolicy overrides the attempt bound and the wait between failed
// attempts. The default allows MaxRetries attempts spaced PollInterval apart.
func WithRetryPolicy(p retry.Policy) Option { return func(w *Watchdog) { w.policy = p } }

// OnRestart registers the callback run after every successful restart.
func OnRestart(fn func(ctx context.Context)) Option { return func(w *Watchdog) { w.onRestart = fn } }

// OnHealth registers a listener for state transitions. It is called
// synchronously and must not block.
func OnHealth(fn func(HealthEvent)) Option { return func(w *Watchdog) { w.onHealth = fn } }

type Watchdog struct {
	cfg       Config
	proc      process.Controller
	clock     clock.Clock
	logger    *slog.Logger
	policy    retry.Policy
	onRestart func(ctx context.Context)
	onHealth  func(HealthEvent)

	restartMu sync.Mutex

	mu        sync.Mutex
	parent    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	armed     bool
	fatal     bool
	loggedIn  bool
	retries   int
	startedAt time.Time
	state     State
}

func New(cfg Config, proc process.Controller, opts ...Option) *Watchdog {
	w := &Watchdog{
		cfg:    cfg,
		proc:   proc,
		clock:  clock.Real(),
		policy: retry.Constant(cfg.MaxRetries, cfg.PollInterval),
		state:  StateStopped,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrDiscard(w.logger).With("component", "watchdog")
	return w
}

// Start arms polling: one check now, then one per poll interval. Calling
// Start while polling does nothing. Start after a fatal stop resets the
// retry budget.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	w.parent = ctx
	w.armed = true
	if w.fatal {
		w.fatal = false
		w.retries = 0
	}
	started := w.startLocked()
	w.mu.Unlock()

	if started {
		w.logger.Info("polling started", "process", w.cfg.ProcessName, "interval", w.cfg.PollInterval)
		w.emit(StatePolling, nil)
	} else {
		w.logger.Debug("start ignored, already polling")
	}
}

// startLocked must be called with w.mu held.
func (w *Watchdog) startLocked() bool {
	if w.cancel != nil || w.parent == nil {
		return false
	}
	ctx, cancel := context.WithCancel(w.parent)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done
	go w.loop(ctx, done)
	return true
}

// stopLocked must be called with w.mu held. It returns the loop's done
// channel, or nil when nothing was polling.
func (w *Watchdog) stopLocked() chan struct{} {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	done := w.done
	w.cancel, w.done = nil, nil
	return done
}

// Stop disarms polling and waits for the loop to exit. Do not call it from
// an OnRestart or OnHealth callback.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	w.armed = false
	done := w.stopLocked()
	w.mu.Unlock()

	if done != nil {
		<-done
		w.logger.Info("polling stopped")
		w.emit(StateStopped, nil)
	}
}

// MarkLoggedIn records a completed login and disarms polling.
func (w *Watchdog) MarkLoggedIn() {
	w.mu.Lock()
	w.loggedIn = true
	w.retries = 0
	stopped := w.stopLocked() != nil
	w.mu.Unlock()

	if stopped {
		w.logger.Info("login complete, polling disarmed")
		w.emit(StateStopped, nil)
	}
}

// MarkLoggedOut clears the login flag and, if the watchdog was armed and has
// not given up, resumes polling with a fresh login deadline.
func (w *Watchdog) MarkLoggedOut() {
	w.mu.Lock()
	w.loggedIn = false
	w.startedAt = w.clock.Now()
	resumed := false
	if w.armed && !w.fatal {
		resumed = w.startLocked()
	}
	w.mu.Unlock()

	if resumed {
		w.logger.Info("logged out, polling resumed")
		w.emit(StatePolling, nil)
	}
}

// State returns the last emitted state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Retries returns the number of restart attempts since the last healthy check.
func (w *Watchdog) Retries() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retries
}

// IsAlive asks the OS whether the process is running. Probe failures count
// as not running.
func (w *Watchdog) IsAlive(ctx context.Context) bool {
	running, err := w.proc.IsRunning(ctx, w.cfg.ProcessName)
	if err != nil {
		w.logger.Warn("liveness probe failed", "error", err)
		return false
	}
	return running
}

func (w *Watchdog) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		w.mu.Lock()
		if w.done == done {
			w.cancel, w.done = nil, nil
		}
		w.mu.Unlock()
		close(done)
	}()

	for {
		if !w.Check(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-w.clock.After(w.nextDelay()):
		}
	}
}

func (w *Watchdog) nextDelay() time.Duration {
	w.mu.Lock()
	retries := w.retries
	w.mu.Unlock()

	if retries > 0 && w.policy.Delay != nil {
		if d := w.policy.Delay(retries); d > 0 {
			return d
		}
	}
	return w.cfg.PollInterval
}

// Check runs one poll cycle and reports whether polling should continue.
func (w *Watchdog) Check(ctx context.Context) bool {
	alive := w.IsAlive(ctx)
	if ctx.Err() != nil {
		return false
	}

	w.mu.Lock()
	now := w.clock.Now()
	if alive {
		if w.startedAt.IsZero() {
			w.startedAt = now
		}
		overdue := !w.loggedIn && w.cfg.LoginTimeout > 0 && now.Sub(w.startedAt) > w.cfg.LoginTimeout
		if !overdue {
			w.retries = 0
			w.mu.Unlock()
			w.emit(StateAlive, nil)
			return true
		}
		w.logger.Warn("login deadline passed, treating process as dead",
			"since", w.startedAt, "timeout", w.cfg.LoginTimeout)
	}

	attempt := w.retries + 1
	if !w.policy.Allow(attempt) {
		w.fatal = true
		retries := w.retries
		w.mu.Unlock()
		w.logger.Error("giving up on chat process", "attempts", retries)
		w.emit(StateFatal, ErrRetriesExhausted)
		return false
	}
	w.retries = attempt
	w.mu.Unlock()

	w.emit(StateDead, nil)
	w.logger.Warn("chat process down, restarting", "attempt", attempt, "max", w.policy.MaxAttempts)
	if err := w.Restart(ctx); err != nil {
		w.logger.Error("restart failed", "attempt", attempt, "error", err)
	}
	return ctx.Err() == nil
}

// Restart kills the process, launches it again, checks it came up and runs
// the fix-up script once. On success the retry counter resets and the
// OnRestart callback runs.
func (w *Watchdog) Restart(ctx context.Context) error {
	w.restartMu.Lock()
	defer w.restartMu.Unlock()

	w.emit(StateRestarting, nil)

	if err := w.proc.Kill(ctx, w.cfg.ProcessName); err != nil {
		w.logger.Warn("kill failed, continuing", "error", err)
	}
	if err := clock.Sleep(ctx, w.clock, w.cfg.SettleDelay); err != nil {
		return err
	}

	if err := w.proc.Spawn(ctx, w.cfg.Executable); err != nil {
		return &RestartError{Stage: StageSpawn, Err: err}
	}
	if err := clock.Sleep(ctx, w.clock, w.cfg.StartupDelay); err != nil {
		return err
	}

	if !w.IsAlive(ctx) {
		return &RestartError{Stage: StageVerify, Err: ErrNotRunning}
	}

	if w.cfg.FixupScript != "" {
		res, err := w.proc.RunScript(ctx, w.cfg.FixupInterpreter, w.cfg.FixupScript)
		if err != nil {
			return &RestartError{Stage: StageFixup, Err: err}
		}
		if !res.OK() {
			return &RestartError{Stage: StageFixup, Err: fmt.Errorf("exit status %d: %s", res.ExitCode, res.Stderr)}
		}
	}

	w.mu.Lock()
	w.startedAt = w.clock.Now()
	w.loggedIn = false
	w.retries = 0
	w.mu.Unlock()

	w.logger.Info("chat process restarted")
	w.emit(StateAlive, nil)

	if w.onRestart != nil {
		w.onRestart(ctx)
	}
	return nil
}

func (w *Watchdog) emit(s State, err error) {
	w.mu.Lock()
	w.state = s
	ev := HealthEvent{State: s, Retries: w.retries, Err: err, At: w.clock.Now()}
	w.mu.Unlock()

	if w.onHealth != nil {
		w.onHealth(ev)
	}
}
