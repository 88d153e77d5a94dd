// Package session owns the live chat session: it builds and restarts the
// client handle, tracks login state and routes session events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neilberkman/groupsum/internal/core/chat"
	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/ingest"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/neilberkman/groupsum/internal/core/models"
	"github.com/neilberkman/groupsum/internal/core/reconcile"
	"github.com/neilberkman/groupsum/internal/core/scheduler"
)

// Watchdog is the part of the process watchdog the controller drives.
type Watchdog interface {
	Start(ctx context.Context)
	Stop()
	MarkLoggedIn()
	MarkLoggedOut()
}

type Deps struct {
	Factory   chat.Factory
	Watchdog  Watchdog
	Pipeline  *ingest.Pipeline
	Syncer    *reconcile.Syncer
	Scheduler *scheduler.Scheduler
	DB        *db.DB
	Clock     clock.Clock
	Logger    *slog.Logger
}

type Config struct {
	LoginTimeout time.Duration
	LoginSettle  time.Duration // delay before the post-login reconciliation
}

// ReconcileKey is the scheduler key of the post-login reconciliation.
func ReconcileKey(accountID string) string { return "reconcile:" + accountID }

type Controller struct {
	deps   Deps
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	base     context.Context
	client   chat.Client
	session  models.Session
	loop     context.CancelFunc
	loopDone chan struct{}
	handlers sync.WaitGroup
}

func NewController(deps Deps, cfg Config) *Controller {
	c := deps.Clock
	if c == nil {
		c = clock.Real()
	}
	return &Controller{
		deps:   deps,
		cfg:    cfg,
		clock:  c,
		logger: logging.OrDiscard(deps.Logger).With("component", "session"),
	}
}

// InitSession builds a fresh client handle and session record. The handle
// is not started.
func (c *Controller) InitSession(ctx context.Context) error {
	client, err := c.deps.Factory(ctx)
	if err != nil {
		return fmt.Errorf("create chat client: %w", err)
	}
	now := c.clock.Now()
	s := models.Session{
		ID:            uuid.NewString(),
		StartedAt:     now,
		LoginDeadline: now.Add(c.cfg.LoginTimeout),
	}

	c.mu.Lock()
	c.client = client
	c.session = s
	c.mu.Unlock()

	c.logger.Info("session initialized", "session_id", s.ID)
	return nil
}

// Start initializes a session if there is none, starts the client, arms the
// watchdog and begins dispatching events. An error here is fatal for the
// session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.base = ctx
	needInit := c.client == nil
	c.mu.Unlock()

	if needInit {
		if err := c.InitSession(ctx); err != nil {
			return err
		}
	}
	if err := c.startClient(ctx); err != nil {
		return err
	}
	if c.deps.Watchdog != nil {
		c.deps.Watchdog.Start(ctx)
	}
	return nil
}

func (c *Controller) startClient(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	base := c.base
	c.mu.Unlock()
	if base == nil {
		base = ctx
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start chat client: %w", err)
	}

	loopCtx, cancel := context.WithCancel(base)
	done := make(chan struct{})
	c.mu.Lock()
	c.loop, c.loopDone = cancel, done
	c.mu.Unlock()

	go c.run(loopCtx, client, done)
	return nil
}

func (c *Controller) run(ctx context.Context, client chat.Client, done chan struct{}) {
	defer close(done)
	events := client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Dispatch(ctx, ev)
		}
	}
}

// Stop disarms the watchdog, cancels scheduled work and stops the client.
// Client errors are logged. Stop waits for in-flight event handlers.
func (c *Controller) Stop(ctx context.Context) {
	if c.deps.Watchdog != nil {
		c.deps.Watchdog.Stop()
	}
	if c.deps.Scheduler != nil {
		c.deps.Scheduler.CancelAll()
	}
	c.teardown(ctx)
	c.handlers.Wait()
	c.logger.Info("session stopped")
}

// teardown stops the current client and its dispatch loop.
func (c *Controller) teardown(ctx context.Context) {
	c.mu.Lock()
	client := c.client
	cancel, done := c.loop, c.loopDone
	c.client = nil
	c.loop, c.loopDone = nil, nil
	c.session.Authenticated = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		if err := client.Stop(ctx); err != nil {
			c.logger.Warn("stopping chat client failed", "error", err)
		}
	}
	if done != nil {
		<-done
	}
}

// HandleRestart rebuilds the session after the chat process was restarted.
// It is safe to call when no session exists.
func (c *Controller) HandleRestart(ctx context.Context) {
	c.logger.Info("chat process restarted, rebuilding session")
	if c.deps.Scheduler != nil {
		c.deps.Scheduler.CancelAll()
	}
	c.teardown(ctx)

	if err := c.InitSession(ctx); err != nil {
		c.logger.Error("rebuilding session failed", "error", err)
		return
	}
	if err := c.startClient(ctx); err != nil {
		c.logger.Error("starting rebuilt session failed", "error", err)
	}
}

// Snapshot returns a copy of the current session record.
func (c *Controller) Snapshot() models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Client returns the current handle, or nil.
func (c *Controller) Client() chat.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// AccountID returns the logged-in account, or "".
func (c *Controller) AccountID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Authenticated {
		return ""
	}
	return c.session.AccountID
}

func (c *Controller) scope() (ingest.Scope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || c.session.AccountID == "" {
		return ingest.Scope{}, false
	}
	return ingest.Scope{Client: c.client, AccountID: c.session.AccountID}, true
}

// Dispatch routes one session event. Room and message events are handled
// on their own goroutine; their failures are logged.
func (c *Controller) Dispatch(ctx context.Context, ev chat.Event) {
	switch ev := ev.(type) {
	case chat.Scan:
		c.logger.Info("scan the QR code to log in", "url", ev.URL, "status", ev.Status)
	case chat.Login:
		c.onLogin(ev)
	case chat.Logout:
		c.onLogout(ev)
	case chat.MessageReceived:
		c.handle(ctx, ev, func(ctx context.Context, s ingest.Scope) error {
			return c.deps.Pipeline.OnMessage(ctx, s, ev.Message)
		})
	case chat.RoomJoined:
		c.handle(ctx, ev, func(ctx context.Context, s ingest.Scope) error {
			return c.deps.Pipeline.OnRoomJoin(ctx, s, ev)
		})
	case chat.RoomLeft:
		c.handle(ctx, ev, func(ctx context.Context, s ingest.Scope) error {
			return c.deps.Pipeline.OnRoomLeave(ctx, s, ev, s.AccountID)
		})
	case chat.RoomTopicChanged:
		c.handle(ctx, ev, func(ctx context.Context, s ingest.Scope) error {
			return c.deps.Pipeline.OnRoomTopic(ctx, s, ev)
		})
	case chat.ClientError:
		c.logger.Error("chat session error", "message", ev.Message)
	default:
		c.logger.Warn("unhandled event", "event", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) handle(ctx context.Context, ev chat.Event, fn func(context.Context, ingest.Scope) error) {
	scope, ok := c.scope()
	if !ok {
		c.logger.Warn("event before login dropped", "event", chat.Name(ev))
		return
	}
	c.handlers.Add(1)
	go func() {
		defer c.handlers.Done()
		if err := fn(ctx, scope); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("event handling failed", "event", chat.Name(ev), "error", err)
		}
	}()
}

func (c *Controller) onLogin(ev chat.Login) {
	c.mu.Lock()
	c.session.AccountID = ev.User.ID
	c.session.Authenticated = true
	client := c.client
	c.mu.Unlock()

	c.logger.Info("logged in", "account_id", ev.User.ID, "name", ev.User.Name)
	if c.deps.Watchdog != nil {
		c.deps.Watchdog.MarkLoggedIn()
	}
	if client == nil || c.deps.Scheduler == nil || c.deps.Syncer == nil {
		return
	}
	accountID := ev.User.ID
	c.deps.Scheduler.Schedule(ReconcileKey(accountID), c.cfg.LoginSettle, func(ctx context.Context) error {
		return c.reconcile(ctx, client, accountID)
	})
}

// reconcile runs the post-login pass. Placeholder rows left by earlier
// deferred passes force it past the freshness gate.
func (c *Controller) reconcile(ctx context.Context, client chat.Client, accountID string) error {
	force := false
	if c.deps.DB != nil {
		n, err := c.deps.DB.CountPlaceholders(ctx, accountID)
		if err != nil {
			return err
		}
		force = n > 0
	}
	_, err := c.deps.Syncer.SyncRoomList(ctx, client, accountID, force)
	return err
}

func (c *Controller) onLogout(ev chat.Logout) {
	c.mu.Lock()
	c.session.Authenticated = false
	c.mu.Unlock()

	c.logger.Warn("logged out", "account_id", ev.User.ID, "reason", ev.Reason)
	if c.deps.Watchdog != nil {
		c.deps.Watchdog.MarkLoggedOut()
	}
}
