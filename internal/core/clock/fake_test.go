package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeAfterFunc(t *testing.T) {
	c := NewFake(epoch)
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })

	c.Advance(4 * time.Second)
	assert.Equal(t, 0, fired)

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)

	c.Advance(time.Hour)
	assert.Equal(t, 1, fired, "one-shot timer fired twice")
}

func TestFakeTimerStop(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(2 * time.Second)
	assert.False(t, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeTicker(t *testing.T) {
	c := NewFake(epoch)
	ticker := c.NewTicker(10 * time.Second)
	defer ticker.Stop()

	c.Advance(10 * time.Second)
	select {
	case ts := <-ticker.C:
		assert.Equal(t, epoch.Add(10*time.Second), ts)
	default:
		t.Fatal("expected a tick")
	}
	assert.Equal(t, 1, c.Pending())
}

func TestSleepHonoursContext(t *testing.T) {
	c := NewFake(epoch)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- Sleep(ctx, c, time.Minute) }()

	c.WaitForTimers(1)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestSleepAdvances(t *testing.T) {
	c := NewFake(epoch)
	errc := make(chan error, 1)
	go func() { errc <- Sleep(context.Background(), c, time.Minute) }()

	c.WaitForTimers(1)
	c.Advance(time.Minute)
	require.NoError(t, <-errc)
}
