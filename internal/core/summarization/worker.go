package summarization

import (
	"context"
	"log/slog"
	"time"

	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/logging"
)

// AccountFunc reports the account currently logged in, or "" when none is.
type AccountFunc func() string

// Worker periodically summarizes every managed group that holds messages
// newer than its watermark.
type Worker struct {
	db         *db.DB
	summarizer *Summarizer
	account    AccountFunc
	clock      clock.Clock
	logger     *slog.Logger
}

// NewWorker creates a new background summarization worker
func NewWorker(database *db.DB, summarizer *Summarizer, account AccountFunc, c clock.Clock, logger *slog.Logger) *Worker {
	if c == nil {
		c = clock.Real()
	}
	return &Worker{
		db:         database,
		summarizer: summarizer,
		account:    account,
		clock:      c,
		logger:     logging.OrDiscard(logger),
	}
}

// Run summarizes pending groups every interval until ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("summarization worker started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("summarization worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil {
				w.logger.Error("summarization pass failed", "error", err)
			}
		}
	}
}

// ProcessPending runs one pass and returns the number of summaries written.
func (w *Worker) ProcessPending(ctx context.Context) (int, error) {
	accountID := w.account()
	if accountID == "" {
		return 0, nil
	}
	rooms, err := w.db.RoomsWithPendingMessages(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if len(rooms) == 0 {
		return 0, nil
	}

	w.logger.Info("summarizing pending groups", "count", len(rooms))
	written, failed := 0, 0
	for _, roomID := range rooms {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		res, err := w.summarizer.GenerateSummary(ctx, roomID, accountID)
		if err != nil {
			failed++
			continue
		}
		if !res.Empty {
			written++
		}
	}
	w.logger.Info("summarization pass done", "succeeded", written, "failed", failed)
	return written, nil
}
