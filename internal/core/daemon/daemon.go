// Package daemon wires the watchdog, session, ingestion, reconciliation and
// summarization into one long-running service.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neilberkman/groupsum/internal/core/chat"
	"github.com/neilberkman/groupsum/internal/core/chat/bridge"
	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/config"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/ingest"
	"github.com/neilberkman/groupsum/internal/core/llm"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/neilberkman/groupsum/internal/core/process"
	"github.com/neilberkman/groupsum/internal/core/reconcile"
	"github.com/neilberkman/groupsum/internal/core/scheduler"
	"github.com/neilberkman/groupsum/internal/core/session"
	"github.com/neilberkman/groupsum/internal/core/summarization"
	"github.com/neilberkman/groupsum/internal/core/watchdog"
)

const shutdownTimeout = 15 * time.Second

// Deps lets callers replace the outer collaborators. Zero fields get the
// production implementations.
type Deps struct {
	Process  process.Controller
	Factory  chat.Factory
	Provider llm.Provider
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Daemon runs the whole service for one chat session.
type Daemon struct {
	cfg        *config.Config
	db         *db.DB
	clock      clock.Clock
	logger     *slog.Logger
	scheduler  *scheduler.Scheduler
	watchdog   *watchdog.Watchdog
	controller *session.Controller
	worker     *summarization.Worker

	mu     sync.Mutex
	health watchdog.HealthEvent
	stats  Stats
}

// Stats tracks daemon activity
type Stats struct {
	StartTime  time.Time
	Restarts   int
	Fatal      bool
	LastHealth time.Time
}

func New(ctx context.Context, cfg *config.Config, database *db.DB, deps Deps) (*Daemon, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	logger := logging.OrDiscard(deps.Logger)
	if deps.Process == nil {
		deps.Process = process.NewExec()
	}
	if deps.Factory == nil {
		deps.Factory = bridge.Factory(bridge.Config{
			BaseURL: cfg.Bridge.URL,
			Token:   cfg.Bridge.Token,
			Clock:   deps.Clock,
			Logger:  logger,
		})
	}
	if deps.Provider == nil {
		p, err := llm.FromConfig(ctx, cfg.Summary)
		if err != nil {
			return nil, fmt.Errorf("summary provider: %w", err)
		}
		deps.Provider = p
	}

	d := &Daemon{
		cfg:    cfg,
		db:     database,
		clock:  deps.Clock,
		logger: logger,
	}
	d.stats.StartTime = deps.Clock.Now()

	d.scheduler = scheduler.New(deps.Clock, logger)
	syncer, err := reconcile.New(database, reconcile.Config{
		Freshness:            cfg.Reconcile.Freshness,
		DefaultAvatarPattern: cfg.Reconcile.DefaultAvatarPattern,
	}, reconcile.WithClock(deps.Clock), reconcile.WithLogger(logger.With("component", "reconcile")))
	if err != nil {
		return nil, err
	}
	summarizer := summarization.New(database, deps.Provider, summarization.Config{
		Model:          cfg.Summary.Model,
		Temperature:    cfg.Summary.Temperature,
		MaxTokens:      cfg.Summary.MaxTokens,
		Timeout:        cfg.Summary.Timeout,
		PromptTemplate: cfg.Summary.PromptTemplate,
	}, logger.With("component", "summarization"))
	pipeline := ingest.New(database, summarizer, syncer, d.scheduler, ingest.Config{
		TriggerPhrase:  cfg.Ingest.TriggerPhrase,
		RoomReadyDelay: cfg.Ingest.RoomReadyDelay,
		ResyncDelay:    cfg.Ingest.ResyncDelay,
		ReplySummary:   cfg.Ingest.ReplySummary,
	}, ingest.WithClock(deps.Clock), ingest.WithLogger(logger))

	// The watchdog restarts through the controller, which in turn drives
	// the watchdog on login and logout.
	var ctrl *session.Controller
	d.watchdog = watchdog.New(watchdog.Config{
		ProcessName:      cfg.Process.Name,
		Executable:       cfg.Process.Executable,
		FixupInterpreter: cfg.Process.FixupInterpreter,
		FixupScript:      cfg.Process.FixupScript,
		PollInterval:     cfg.Watchdog.PollInterval,
		MaxRetries:       cfg.Watchdog.MaxRetries,
		LoginTimeout:     cfg.Watchdog.LoginTimeout,
		SettleDelay:      cfg.Watchdog.SettleDelay,
		StartupDelay:     cfg.Watchdog.StartupDelay,
	}, deps.Process,
		watchdog.WithClock(deps.Clock),
		watchdog.WithLogger(logger),
		watchdog.OnRestart(func(ctx context.Context) { ctrl.HandleRestart(ctx) }),
		watchdog.OnHealth(d.onHealth),
	)
	ctrl = session.NewController(session.Deps{
		Factory:   deps.Factory,
		Watchdog:  d.watchdog,
		Pipeline:  pipeline,
		Syncer:    syncer,
		Scheduler: d.scheduler,
		DB:        database,
		Clock:     deps.Clock,
		Logger:    logger,
	}, session.Config{
		LoginTimeout: cfg.Watchdog.LoginTimeout,
		LoginSettle:  cfg.Session.LoginSettle,
	})
	d.controller = ctrl
	d.worker = summarization.NewWorker(database, summarizer, ctrl.AccountID, deps.Clock, logger.With("component", "worker"))
	return d, nil
}

// Run starts the session and blocks until ctx is cancelled. Only a failure
// to bring the session up is returned.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon starting",
		"db", d.cfg.DB.Path,
		"process", d.cfg.Process.Name,
		"bridge", d.cfg.Bridge.URL,
		"provider", d.cfg.Summary.Provider)

	if err := d.controller.Start(ctx); err != nil {
		d.scheduler.Close()
		return fmt.Errorf("start session: %w", err)
	}

	var wg sync.WaitGroup
	if d.cfg.Summary.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.worker.Run(ctx, d.cfg.Summary.Interval)
		}()
	}

	<-ctx.Done()
	d.logger.Info("daemon shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.controller.Stop(stopCtx)
	d.scheduler.Close()
	wg.Wait()
	d.logger.Info("daemon stopped")
	return nil
}

func (d *Daemon) onHealth(ev watchdog.HealthEvent) {
	d.mu.Lock()
	d.health = ev
	d.stats.LastHealth = ev.At
	if ev.State == watchdog.StateRestarting {
		d.stats.Restarts++
	}
	if ev.State == watchdog.StateFatal {
		d.stats.Fatal = true
	}
	d.mu.Unlock()

	switch ev.State {
	case watchdog.StateFatal:
		d.logger.Error("watchdog gave up, chat process stays down", "retries", ev.Retries, "error", ev.Err)
	case watchdog.StateDead:
		d.logger.Warn("chat process not healthy", "retries", ev.Retries, "error", ev.Err)
	default:
		d.logger.Debug("watchdog state", "state", ev.State, "retries", ev.Retries)
	}
}

// Health returns the last watchdog event.
func (d *Daemon) Health() watchdog.HealthEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.health
}

func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Controller returns the session controller.
func (d *Daemon) Controller() *session.Controller {
	return d.controller
}
