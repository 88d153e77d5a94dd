// Package ingest persists what the chat session reports: messages, room
// membership changes and topic changes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neilberkman/groupsum/internal/core/chat"
	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/neilberkman/groupsum/internal/core/models"
	"github.com/neilberkman/groupsum/internal/core/scheduler"
	"github.com/neilberkman/groupsum/internal/core/summarization"
)

// Replies sent back into a room after a summary request.
const (
	ReplyFailed  = "Sorry, the summary could not be generated right now. Please try again later."
	ReplyNothing = "No new messages since the last summary."
	ReplyBusy    = "A summary for this group is already being generated."
)

// Scope is the session an event belongs to.
type Scope struct {
	Client    chat.Client
	AccountID string
}

// SummaryTrigger generates a summary for a room.
type SummaryTrigger interface {
	GenerateSummary(ctx context.Context, roomID, accountID string) (summarization.Result, error)
}

// Resyncer builds the task that reconciles the room list later.
type Resyncer interface {
	Deferred(dir chat.Directory, accountID string) scheduler.Task
}

type Config struct {
	TriggerPhrase  string
	RoomReadyDelay time.Duration // wait before the single readiness retry
	ResyncDelay    time.Duration // delay of the deferred reconciliation
	ReplySummary   bool          // post generated summaries into the room
}

type Pipeline struct {
	db        *db.DB
	summary   SummaryTrigger
	resync    Resyncer
	scheduler *scheduler.Scheduler
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

type Option func(*Pipeline)

func WithClock(c clock.Clock) Option { return func(p *Pipeline) { p.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func New(database *db.DB, summary SummaryTrigger, resync Resyncer, sched *scheduler.Scheduler, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		db:        database,
		summary:   summary,
		resync:    resync,
		scheduler: sched,
		cfg:       cfg,
		clock:     clock.Real(),
		inFlight:  make(map[string]bool),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = logging.OrDiscard(p.logger).With("component", "ingest")
	return p
}

// ResyncKey is the scheduler key of the deferred reconciliation for an account.
func ResyncKey(accountID string) string { return "resync:" + accountID }

// OnMessage stores a room message and runs the summary command when the
// message asks for one. Direct messages are ignored.
func (p *Pipeline) OnMessage(ctx context.Context, scope Scope, m chat.Message) error {
	if m.RoomID == "" {
		return nil
	}
	ts := m.Time
	if ts.IsZero() {
		ts = p.clock.Now()
	}
	msg := &models.Message{
		RoomID:       m.RoomID,
		AccountID:    scope.AccountID,
		MsgID:        m.ID,
		SenderID:     m.SenderID,
		SenderName:   models.SenderDisplayName(m.SenderAlias, m.SenderName, m.SenderID),
		Content:      m.Text,
		Timestamp:    ts,
		Kind:         models.KindFromCode(m.KindCode),
		MentionsSelf: m.MentionsSelf,
	}
	if err := p.db.UpsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("store message %s: %w", m.ID, err)
	}
	p.logger.Debug("message stored", "room_id", m.RoomID, "msg_id", m.ID, "kind", msg.Kind)

	if !p.isTrigger(m) {
		return nil
	}
	return p.runSummary(ctx, scope, m.RoomID)
}

func (p *Pipeline) isTrigger(m chat.Message) bool {
	phrase := strings.TrimSpace(p.cfg.TriggerPhrase)
	return phrase != "" && m.MentionsSelf && strings.Contains(strings.TrimSpace(m.Text), phrase)
}

func (p *Pipeline) runSummary(ctx context.Context, scope Scope, roomID string) error {
	log := p.logger.With("room_id", roomID)

	p.mu.Lock()
	if p.inFlight[roomID] {
		p.mu.Unlock()
		log.Info("summary already in progress")
		p.reply(ctx, scope, roomID, ReplyBusy)
		return nil
	}
	p.inFlight[roomID] = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, roomID)
		p.mu.Unlock()
	}()

	log.Info("summary requested")
	res, err := p.summary.GenerateSummary(ctx, roomID, scope.AccountID)
	switch {
	case err != nil:
		log.Error("summary failed", "error", err)
		p.reply(ctx, scope, roomID, ReplyFailed)
	case res.Empty:
		p.reply(ctx, scope, roomID, ReplyNothing)
	case p.cfg.ReplySummary:
		p.reply(ctx, scope, roomID, res.Text)
	}
	return nil
}

func (p *Pipeline) reply(ctx context.Context, scope Scope, roomID, text string) {
	if scope.Client == nil {
		return
	}
	if err := scope.Client.Send(ctx, roomID, text); err != nil {
		p.logger.Warn("reply failed", "room_id", roomID, "error", err)
	}
}

// OnRoomJoin records membership of a room the session was added to.
func (p *Pipeline) OnRoomJoin(ctx context.Context, scope Scope, ev chat.RoomJoined) error {
	p.logger.Info("joined room", "room_id", ev.RoomID, "inviter", ev.Inviter.Name, "invitees", len(ev.Invitees))

	room, ok := p.awaitRoom(ctx, scope, ev.RoomID)
	if !ok {
		return p.placeholder(ctx, scope, ev.RoomID)
	}
	return p.db.UpsertGroup(ctx, groupFromRoom(room, scope.AccountID))
}

// OnRoomLeave marks the room unmanaged when the session itself left. The
// row and its history are kept.
func (p *Pipeline) OnRoomLeave(ctx context.Context, scope Scope, ev chat.RoomLeft, selfID string) error {
	if len(ev.Leavers) > 0 && !chat.Includes(ev.Leavers, selfID) {
		p.logger.Debug("members left room", "room_id", ev.RoomID, "count", len(ev.Leavers))
		return nil
	}
	found, err := p.db.SetGroupManaged(ctx, ev.RoomID, scope.AccountID, false)
	if err != nil {
		return err
	}
	p.logger.Info("left room", "room_id", ev.RoomID, "known", found)
	return nil
}

// OnRoomTopic renames a known room, or records it in full when it is new.
func (p *Pipeline) OnRoomTopic(ctx context.Context, scope Scope, ev chat.RoomTopicChanged) error {
	log := p.logger.With("room_id", ev.RoomID)
	log.Info("room topic changed", "old", ev.OldTopic, "new", ev.NewTopic, "changer", ev.Changer.Name)

	room, ready := p.awaitRoom(ctx, scope, ev.RoomID)
	topic := ev.NewTopic
	if topic == "" {
		topic = room.Topic
	}

	found, err := p.renameGroup(ctx, scope, ev.RoomID, topic)
	if err != nil || found {
		return err
	}
	if !ready {
		return p.placeholder(ctx, scope, ev.RoomID)
	}
	g := groupFromRoom(room, scope.AccountID)
	if topic != "" {
		g.Name = topic
	}
	return p.db.UpsertGroup(ctx, g)
}

// renameGroup reports whether the room is already stored. An empty topic
// leaves the stored name alone.
func (p *Pipeline) renameGroup(ctx context.Context, scope Scope, roomID, topic string) (bool, error) {
	if topic != "" {
		return p.db.UpdateGroupName(ctx, roomID, scope.AccountID, topic)
	}
	_, err := p.db.GetGroup(ctx, roomID, scope.AccountID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// awaitRoom fetches room metadata, retrying once after RoomReadyDelay when
// the room is missing or not ready yet.
func (p *Pipeline) awaitRoom(ctx context.Context, scope Scope, roomID string) (chat.Room, bool) {
	if scope.Client == nil {
		return chat.Room{}, false
	}
	for attempt := 1; ; attempt++ {
		room, err := scope.Client.Room(ctx, roomID)
		if err == nil && room.Ready {
			return room, true
		}
		if err != nil && !errors.Is(err, chat.ErrRoomNotFound) {
			p.logger.Warn("room lookup failed", "room_id", roomID, "attempt", attempt, "error", err)
		}
		if attempt == 2 {
			return chat.Room{}, false
		}
		if err := clock.Sleep(ctx, p.clock, p.cfg.RoomReadyDelay); err != nil {
			return chat.Room{}, false
		}
	}
}

// placeholder records a room whose metadata is not readable yet and queues
// a reconciliation pass to fill it in.
func (p *Pipeline) placeholder(ctx context.Context, scope Scope, roomID string) error {
	if err := p.db.InsertPlaceholderGroup(ctx, roomID, scope.AccountID); err != nil {
		return err
	}
	p.logger.Warn("room metadata unavailable, stored placeholder", "room_id", roomID)
	p.ScheduleResync(scope)
	return nil
}

// ScheduleResync queues a forced reconciliation for the account after
// ResyncDelay. Pending requests for the same account collapse into one.
func (p *Pipeline) ScheduleResync(scope Scope) bool {
	if p.scheduler == nil || p.resync == nil || scope.Client == nil {
		return false
	}
	return p.scheduler.Schedule(ResyncKey(scope.AccountID), p.cfg.ResyncDelay,
		p.resync.Deferred(scope.Client, scope.AccountID))
}

func groupFromRoom(r chat.Room, accountID string) *models.Group {
	name := r.Topic
	if name == "" {
		name = models.PendingSyncName
	}
	return &models.Group{
		RoomID:      r.ID,
		AccountID:   accountID,
		Name:        name,
		MemberCount: r.MemberCount,
		Avatar:      r.Avatar,
	}
}
