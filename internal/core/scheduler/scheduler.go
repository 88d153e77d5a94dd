// Package scheduler runs keyed one-shot tasks after a delay. Scheduling a
// key that is already pending replaces it, so bursts of requests for the
// same work coalesce into one run.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/logging"
)

// Task is deferred work. It runs with the scheduler's context, which is
// cancelled by Close.
type Task func(ctx context.Context) error

// Entry describes a pending or finished task.
type Entry struct {
	Key       string
	Scheduled time.Time
	Due       time.Time
	Running   bool
	Finished  time.Time
	Err       error
}

type job struct {
	id    uint64
	entry Entry
	timer *clock.Timer
}

type Scheduler struct {
	clock  clock.Clock
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	nextID  uint64
	pending map[string]*job
	last    map[string]Entry
	closed  bool
	wg      sync.WaitGroup
}

func New(c clock.Clock, logger *slog.Logger) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:   c,
		logger:  logging.OrDiscard(logger).With("component", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*job),
		last:    make(map[string]Entry),
	}
}

// Schedule runs task after delay under key, replacing a pending task with
// the same key. It returns false once the scheduler is closed.
func (s *Scheduler) Schedule(key string, delay time.Duration, task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if old, ok := s.pending[key]; ok && !old.entry.Running {
		if old.timer != nil && old.timer.Stop() {
			s.wg.Done()
		}
		s.logger.Debug("replacing pending task", "key", key)
	}

	s.nextID++
	now := s.clock.Now()
	j := &job{id: s.nextID, entry: Entry{Key: key, Scheduled: now, Due: now.Add(delay)}}
	s.pending[key] = j
	s.wg.Add(1)

	// AfterFunc may call back synchronously for non-positive delays
	s.mu.Unlock()
	timer := s.clock.AfterFunc(delay, func() { go s.run(key, j.id, task) })
	s.mu.Lock()
	j.timer = timer
	return true
}

func (s *Scheduler) run(key string, id uint64, task Task) {
	defer s.wg.Done()

	s.mu.Lock()
	j, ok := s.pending[key]
	if !ok || j.id != id || s.closed {
		s.mu.Unlock()
		return
	}
	j.entry.Running = true
	s.mu.Unlock()

	err := task(s.ctx)

	s.mu.Lock()
	entry := j.entry
	entry.Running = false
	entry.Finished = s.clock.Now()
	entry.Err = err
	s.last[key] = entry
	if cur, ok := s.pending[key]; ok && cur.id == id {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("scheduled task failed", "key", key, "error", err)
	} else {
		s.logger.Debug("scheduled task done", "key", key)
	}
}

// Cancel drops a pending task. Tasks already running are not interrupted.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

func (s *Scheduler) cancelLocked(key string) bool {
	j, ok := s.pending[key]
	if !ok || j.entry.Running {
		return false
	}
	delete(s.pending, key)
	if j.timer != nil && j.timer.Stop() {
		s.wg.Done()
	}
	return true
}

// CancelAll drops every pending task and returns how many were dropped.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.pending {
		if s.cancelLocked(key) {
			n++
		}
	}
	if n > 0 {
		s.logger.Info("cancelled pending tasks", "count", n)
	}
	return n
}

// Pending lists scheduled and running tasks, soonest first.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.pending))
	for _, j := range s.pending {
		out = append(out, j.entry)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Due.Before(out[k].Due) })
	return out
}

// Last returns the outcome of the most recent finished run of key.
func (s *Scheduler) Last(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.last[key]
	return e, ok
}

// Wait blocks until no task is pending or running.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels pending tasks, cancels the context of running ones and
// waits for them to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.CancelAll()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
