package summarization

import (
	"context"
	"testing"
	"time"

	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkerProcessPending(t *testing.T) {
	database, p, s := setup(t)
	addMessages(t, database, 1, t0, t0.Add(time.Minute))
	p.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Text: "digest"}, nil).Once()

	w := NewWorker(database, s, func() string { return acct }, clock.NewFake(t0), nil)

	n, err := w.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	p.AssertNumberOfCalls(t, "Complete", 1)
}

func TestWorkerIdleWithoutAccount(t *testing.T) {
	database, p, s := setup(t)
	addMessages(t, database, 1, t0)

	w := NewWorker(database, s, func() string { return "" }, nil, nil)
	n, err := w.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	p.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestWorkerRunTicks(t *testing.T) {
	database, p, s := setup(t)
	addMessages(t, database, 1, t0)
	done := make(chan struct{})
	p.On("Complete", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(done) }).
		Return(&llm.Response{Text: "digest"}, nil).Once()

	fake := clock.NewFake(t0)
	w := NewWorker(database, s, func() string { return acct }, fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, time.Hour) }()

	fake.WaitForTimers(1)
	fake.Advance(time.Hour)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not summarize on tick")
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
