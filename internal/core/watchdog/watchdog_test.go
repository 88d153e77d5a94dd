package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

type fakeProc struct {
	mu        sync.Mutex
	running   bool
	upOnSpawn bool
	probeErr  error
	fixup     process.ScriptResult
	kills     int
	spawns    int
	scripts   int
}

func (f *fakeProc) IsRunning(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.probeErr
}

func (f *fakeProc) Kill(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills++
	f.running = false
	return nil
}

func (f *fakeProc) Spawn(context.Context, string, ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns++
	f.running = f.upOnSpawn
	return nil
}

func (f *fakeProc) RunScript(context.Context, string, string) (process.ScriptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts++
	return f.fixup, nil
}

func (f *fakeProc) counts() (kills, spawns, scripts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kills, f.spawns, f.scripts
}

func testConfig() Config {
	return Config{
		ProcessName:      "wechat",
		Executable:       "/usr/bin/wechat",
		FixupInterpreter: "python",
		FixupScript:      "change_version.py",
		PollInterval:     30 * time.Second,
		MaxRetries:       3,
		LoginTimeout:     5 * time.Minute,
	}
}

func TestRestartBounding(t *testing.T) {
	clk := clock.NewFake(epoch)
	proc := &fakeProc{}

	var (
		mu     sync.Mutex
		fatals int
	)
	fatal := make(chan struct{}, 1)
	w := New(testConfig(), proc, WithClock(clk), OnHealth(func(ev HealthEvent) {
		if ev.State == StateFatal {
			mu.Lock()
			fatals++
			mu.Unlock()
			assert.ErrorIs(t, ev.Err, ErrRetriesExhausted)
			fatal <- struct{}{}
		}
	}))

	w.Start(context.Background())
	for i := 0; i < 3; i++ {
		clk.WaitForTimers(1)
		clk.Advance(30 * time.Second)
	}

	select {
	case <-fatal:
	case <-time.After(5 * time.Second):
		t.Fatal("no fatal health event")
	}
	w.Stop()

	_, spawns, scripts := proc.counts()
	assert.Equal(t, 3, spawns)
	assert.Equal(t, 0, scripts, "fix-up must not run when the process never came up")
	mu.Lock()
	assert.Equal(t, 1, fatals)
	mu.Unlock()
	assert.Equal(t, 0, clk.Pending(), "polling continued after giving up")
}

func TestSuccessfulRestart(t *testing.T) {
	clk := clock.NewFake(epoch)
	proc := &fakeProc{upOnSpawn: true}
	restarted := 0
	w := New(testConfig(), proc, WithClock(clk), OnRestart(func(context.Context) { restarted++ }))

	assert.True(t, w.Check(context.Background()))

	kills, spawns, scripts := proc.counts()
	assert.Equal(t, 1, kills)
	assert.Equal(t, 1, spawns)
	assert.Equal(t, 1, scripts)
	assert.Equal(t, 1, restarted)
	assert.Equal(t, 0, w.Retries())
	assert.Equal(t, StateAlive, w.State())
}

func TestFixupFailure(t *testing.T) {
	proc := &fakeProc{upOnSpawn: true, fixup: process.ScriptResult{ExitCode: 1, Stderr: "version patch failed"}}
	restarted := false
	w := New(testConfig(), proc, WithClock(clock.NewFake(epoch)), OnRestart(func(context.Context) { restarted = true }))

	err := w.Restart(context.Background())
	var re *RestartError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, StageFixup, re.Stage)
	assert.False(t, restarted)
}

func TestVerifyFailure(t *testing.T) {
	proc := &fakeProc{}
	w := New(testConfig(), proc, WithClock(clock.NewFake(epoch)))

	err := w.Restart(context.Background())
	var re *RestartError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, StageVerify, re.Stage)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestLoginTimeoutForcesRestart(t *testing.T) {
	clk := clock.NewFake(epoch)
	proc := &fakeProc{running: true, upOnSpawn: true}
	restarted := 0
	w := New(testConfig(), proc, WithClock(clk), OnRestart(func(context.Context) { restarted++ }))

	require.True(t, w.Check(context.Background()))
	_, spawns, _ := proc.counts()
	assert.Equal(t, 0, spawns)

	clk.Advance(4 * time.Minute)
	require.True(t, w.Check(context.Background()))
	_, spawns, _ = proc.counts()
	assert.Equal(t, 0, spawns, "restarted before the deadline")

	clk.Advance(2 * time.Minute)
	require.True(t, w.Check(context.Background()))
	_, spawns, _ = proc.counts()
	assert.Equal(t, 1, spawns)
	assert.Equal(t, 1, restarted)
}

func TestLoggedInProcessIsNotRestarted(t *testing.T) {
	clk := clock.NewFake(epoch)
	proc := &fakeProc{running: true}
	w := New(testConfig(), proc, WithClock(clk))

	require.True(t, w.Check(context.Background()))
	w.MarkLoggedIn()
	clk.Advance(time.Hour)
	require.True(t, w.Check(context.Background()))

	_, spawns, _ := proc.counts()
	assert.Equal(t, 0, spawns)
}

func TestHealthyCheckResetsRetries(t *testing.T) {
	proc := &fakeProc{}
	w := New(testConfig(), proc, WithClock(clock.NewFake(epoch)))

	w.Check(context.Background())
	w.Check(context.Background())
	assert.Equal(t, 2, w.Retries())

	proc.mu.Lock()
	proc.running = true
	proc.mu.Unlock()
	w.Check(context.Background())
	assert.Equal(t, 0, w.Retries())
}

func TestProbeErrorCountsAsDead(t *testing.T) {
	proc := &fakeProc{running: true, probeErr: errors.New("pgrep: permission denied")}
	w := New(testConfig(), proc, WithClock(clock.NewFake(epoch)))
	assert.False(t, w.IsAlive(context.Background()))
}

func TestLoginDisarmsAndLogoutRearms(t *testing.T) {
	clk := clock.NewFake(epoch)
	proc := &fakeProc{running: true}
	w := New(testConfig(), proc, WithClock(clk))

	w.Start(context.Background())
	clk.WaitForTimers(1)

	w.MarkLoggedIn()
	assert.Equal(t, StateStopped, w.State())

	// the abandoned wait of the first loop stays registered on the fake clock
	w.MarkLoggedOut()
	clk.WaitForTimers(2)
	w.Stop()
	assert.Equal(t, StateStopped, w.State())
}

func TestStartTwiceIsNoop(t *testing.T) {
	clk := clock.NewFake(epoch)
	proc := &fakeProc{running: true}
	w := New(testConfig(), proc, WithClock(clk))

	w.Start(context.Background())
	clk.WaitForTimers(1)
	w.Start(context.Background())

	assert.Never(t, func() bool { return clk.Pending() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	w.Stop()
}
