// Package reconcile brings the stored group list in line with the rooms the
// session currently belongs to.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/neilberkman/groupsum/internal/core/chat"
	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/neilberkman/groupsum/internal/core/models"
	"github.com/neilberkman/groupsum/internal/core/scheduler"
)

type Config struct {
	// Freshness skips unforced passes when the last completed pass for the
	// account is younger than this.
	Freshness time.Duration
	// DefaultAvatarPattern matches avatar URLs that are the platform's
	// generic placeholder. Matching avatars are stored as empty.
	DefaultAvatarPattern string
}

// SyncStats reports what one pass did.
type SyncStats struct {
	Skipped  bool
	Seen     int
	Inserted int
	Updated  int
}

type Syncer struct {
	db            *db.DB
	freshness     time.Duration
	defaultAvatar *regexp.Regexp
	clock         clock.Clock
	logger        *slog.Logger
}

type Option func(*Syncer)

func WithClock(c clock.Clock) Option { return func(s *Syncer) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Syncer) { s.logger = l } }

func New(database *db.DB, cfg Config, opts ...Option) (*Syncer, error) {
	s := &Syncer{
		db:        database,
		freshness: cfg.Freshness,
		clock:     clock.Real(),
	}
	if cfg.DefaultAvatarPattern != "" {
		re, err := regexp.Compile(cfg.DefaultAvatarPattern)
		if err != nil {
			return nil, fmt.Errorf("default avatar pattern: %w", err)
		}
		s.defaultAvatar = re
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	return s, nil
}

// SyncRoomList upserts every room the session reports. Rooms missing from
// the listing are left untouched. Every pass that is not skipped appends a
// sync_logs row, including failed ones.
func (s *Syncer) SyncRoomList(ctx context.Context, dir chat.Directory, accountID string, force bool) (SyncStats, error) {
	return s.sync(ctx, dir, accountID, force, models.SyncFull)
}

// Deferred returns a task that runs a forced pass recorded as deferred.
// It is scheduled when a room joined before its metadata was readable.
func (s *Syncer) Deferred(dir chat.Directory, accountID string) scheduler.Task {
	return func(ctx context.Context) error {
		_, err := s.sync(ctx, dir, accountID, true, models.SyncDeferred)
		return err
	}
}

func (s *Syncer) sync(ctx context.Context, dir chat.Directory, accountID string, force bool, kind models.SyncType) (SyncStats, error) {
	if accountID == "" {
		return SyncStats{}, errors.New("reconcile: account id is empty")
	}
	log := s.logger.With("account_id", accountID, "sync_type", kind)

	if !force && s.freshness > 0 {
		last, err := s.db.LastCompletedSync(ctx, accountID)
		if err != nil {
			return SyncStats{}, err
		}
		if !last.IsZero() && s.clock.Now().Sub(last) < s.freshness {
			log.Info("room list is fresh, skipping sync", "last_sync", last)
			return SyncStats{Skipped: true}, nil
		}
	}

	stats, err := s.apply(ctx, dir, accountID)
	entry := &models.SyncLog{
		AccountID:      accountID,
		Type:           kind,
		Status:         models.SyncCompleted,
		GroupsSeen:     stats.Seen,
		GroupsInserted: stats.Inserted,
		GroupsUpdated:  stats.Updated,
		SyncedAt:       s.clock.Now(),
	}
	if err != nil {
		entry.Status = models.SyncFailed
		entry.ErrorMessage = err.Error()
	}
	if logErr := s.db.AppendSyncLog(ctx, entry); logErr != nil {
		err = errors.Join(err, logErr)
	}
	if err != nil {
		log.Error("room list sync failed", "error", err)
		return stats, err
	}

	log.Info("room list synced", "seen", stats.Seen, "inserted", stats.Inserted, "updated", stats.Updated)
	return stats, nil
}

func (s *Syncer) apply(ctx context.Context, dir chat.Directory, accountID string) (SyncStats, error) {
	rooms, err := dir.Rooms(ctx)
	if err != nil {
		return SyncStats{}, fmt.Errorf("list rooms: %w", err)
	}

	groups := make([]*models.Group, 0, len(rooms))
	partial := make(map[string]bool)
	for _, r := range rooms {
		r = s.resolve(ctx, dir, r)
		name := r.Topic
		if name == "" {
			name = models.PendingSyncName
			partial[r.ID] = true
		}
		groups = append(groups, &models.Group{
			RoomID:      r.ID,
			AccountID:   accountID,
			Name:        name,
			MemberCount: r.MemberCount,
			Avatar:      s.avatar(r.Avatar),
		})
	}

	stats := SyncStats{Seen: len(groups)}
	err = s.db.WithTx(ctx, func(tx *db.Tx) error {
		existing, err := tx.ExistingRoomIDs(ctx, accountID)
		if err != nil {
			return err
		}
		for _, g := range groups {
			// rooms without a readable topic keep their stored metadata
			upsert := tx.UpsertGroup
			if partial[g.RoomID] {
				upsert = tx.RefreshGroup
			}
			if err := upsert(ctx, g); err != nil {
				return err
			}
			if existing[g.RoomID] {
				stats.Updated++
			} else {
				stats.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return SyncStats{Seen: stats.Seen}, err
	}
	return stats, nil
}

// resolve fills in details the listing left out. A failed lookup keeps the
// listed values.
func (s *Syncer) resolve(ctx context.Context, dir chat.Directory, r chat.Room) chat.Room {
	if r.Ready && r.Topic != "" && r.MemberCount > 0 {
		return r
	}
	full, err := dir.Room(ctx, r.ID)
	if err != nil {
		s.logger.Warn("room details unavailable", "room_id", r.ID, "error", err)
		return r
	}
	if full.Topic == "" {
		full.Topic = r.Topic
	}
	return full
}

func (s *Syncer) avatar(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return ""
	}
	if s.defaultAvatar != nil && s.defaultAvatar.MatchString(raw) {
		return ""
	}
	return raw
}
