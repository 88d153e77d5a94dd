package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyAllow(t *testing.T) {
	p := Constant(3, time.Second)
	assert.True(t, p.Allow(1))
	assert.True(t, p.Allow(3))
	assert.False(t, p.Allow(4))

	assert.True(t, Policy{}.Allow(1000), "zero max is unbounded")
}

func TestExponentialDelay(t *testing.T) {
	p := Exponential(0, time.Second, 5*time.Second)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 5 * time.Second},
		{9, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Wait(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Constant(5, 0).Do(context.Background(), clock.Real(), func(context.Context, int) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoExhausts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Constant(3, 0).Do(context.Background(), clock.Real(), func(context.Context, int) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}
