package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestScheduleRunsAfterDelay(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(clk, nil)
	defer s.Close()

	var runs atomic.Int32
	require.True(t, s.Schedule("reconcile:a", 10*time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, epoch.Add(10*time.Second), pending[0].Due)

	clk.Advance(9 * time.Second)
	assert.Equal(t, int32(0), runs.Load())

	clk.Advance(time.Second)
	s.Wait()
	assert.Equal(t, int32(1), runs.Load())
	assert.Empty(t, s.Pending())

	last, ok := s.Last("reconcile:a")
	require.True(t, ok)
	assert.NoError(t, last.Err)
}

func TestScheduleReplacesSameKey(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(clk, nil)
	defer s.Close()

	var first, second atomic.Int32
	s.Schedule("k", 5*time.Second, func(context.Context) error { first.Add(1); return nil })
	s.Schedule("k", 8*time.Second, func(context.Context) error { second.Add(1); return nil })
	assert.Len(t, s.Pending(), 1)

	clk.Advance(10 * time.Second)
	s.Wait()
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestCancel(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(clk, nil)
	defer s.Close()

	var runs atomic.Int32
	task := func(context.Context) error { runs.Add(1); return nil }
	s.Schedule("a", time.Second, task)
	s.Schedule("b", time.Second, task)
	s.Schedule("c", time.Second, task)

	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))
	assert.Equal(t, 2, s.CancelAll())

	clk.Advance(time.Minute)
	s.Wait()
	assert.Equal(t, int32(0), runs.Load())
}

func TestFailureIsRecorded(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(clk, nil)
	defer s.Close()

	boom := errors.New("room list unavailable")
	s.Schedule("k", time.Second, func(context.Context) error { return boom })
	clk.Advance(time.Second)
	s.Wait()

	last, ok := s.Last("k")
	require.True(t, ok)
	assert.ErrorIs(t, last.Err, boom)
	assert.Equal(t, epoch.Add(time.Second), last.Finished)
}

func TestCloseRejectsNewWork(t *testing.T) {
	s := New(clock.NewFake(epoch), nil)
	s.Schedule("k", time.Hour, func(context.Context) error { return nil })
	s.Close()

	assert.Empty(t, s.Pending())
	assert.False(t, s.Schedule("k", time.Second, func(context.Context) error { return nil }))
}

func TestCloseCancelsRunningContext(t *testing.T) {
	s := New(clock.Real(), nil)

	started := make(chan struct{})
	s.Schedule("slow", 0, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	s.Close()

	last, ok := s.Last("slow")
	require.True(t, ok)
	assert.ErrorIs(t, last.Err, context.Canceled)
}
