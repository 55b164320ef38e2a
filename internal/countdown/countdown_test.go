package countdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zomboctl/internal/clock"
	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/testutil"
)

var (
	mainServer = server.Identity{Name: "Main", SystemUser: "pzmain"}
	sideServer = server.Identity{Name: "Side", SystemUser: "pzside"}
)

type fakeRestarter struct {
	mu         sync.Mutex
	down       map[string]bool
	restartErr error
	restarts   []string
}

func (f *fakeRestarter) Restart(_ context.Context, id server.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, id.Name)
	return f.restartErr
}

func (f *fakeRestarter) IsRunning(_ context.Context, id server.Identity) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down[id.Name], nil
}

func (f *fakeRestarter) Restarts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.restarts...)
}

type fixture struct {
	coord     *Coordinator
	clock     *clock.FakeClock
	console   *testutil.FakeConsole
	chat      *testutil.FakeNotifier
	restarter *fakeRestarter
}

func newFixture(duration time.Duration, mods ...func(*Config)) *fixture {
	f := &fixture{
		clock:     clock.Fake(time.Date(2026, 5, 1, 4, 0, 0, 0, time.UTC)),
		console:   &testutil.FakeConsole{},
		chat:      &testutil.FakeNotifier{},
		restarter: &fakeRestarter{down: map[string]bool{}},
	}
	cfg := Config{
		Channel:   f.console,
		Chat:      f.chat,
		Restarter: f.restarter,
		Duration:  duration,
		Tick:      5 * time.Second,
		Clock:     f.clock,
	}
	for _, mod := range mods {
		mod(&cfg)
	}
	f.coord = New(cfg)
	return f
}

type result struct {
	restarted bool
	err       error
}

func (f *fixture) start(id server.Identity) <-chan result {
	done := make(chan result, 1)
	go func() {
		ok, err := f.coord.Start(context.Background(), id, "Restarting "+id.Name+" soon")
		done <- result{ok, err}
	}()
	return done
}

func (f *fixture) waitForCommand(t *testing.T, id server.Identity, cmd string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, c := range f.console.Commands(id.Name) {
			if c == cmd {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond, "waiting for %q", cmd)
}

func wait(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not finish")
		return result{}
	}
}

func TestFullCountdownRestarts(t *testing.T) {
	f := newFixture(2 * time.Minute)
	done := f.start(mainServer)

	f.clock.WaitForTimers(1)
	f.waitForCommand(t, mainServer, `servermsg "The server will restart in 2 minute(s)!"`)
	assert.True(t, f.coord.IsRunning(mainServer))

	f.clock.Advance(60 * time.Second)
	f.waitForCommand(t, mainServer, `servermsg "The server will restart in 1 minute(s)!"`)
	f.clock.Advance(30 * time.Second)
	f.waitForCommand(t, mainServer, `servermsg "The server will restart in 30 seconds!"`)
	f.clock.Advance(20 * time.Second)
	f.waitForCommand(t, mainServer, `servermsg "The server will restart in 10 seconds!"`)
	f.clock.Advance(10 * time.Second)

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.True(t, r.restarted)
	assert.Equal(t, []string{"Main"}, f.restarter.Restarts())
	assert.Equal(t, Idle, f.coord.State(mainServer))

	assert.Equal(t, []string{
		`servermsg "The server will restart in 2 minute(s)!"`,
		`servermsg "The server will restart in 1 minute(s)!"`,
		`servermsg "The server will restart in 30 seconds!"`,
		`servermsg "The server will restart in 10 seconds!"`,
	}, f.console.Commands("Main"))

	chat := f.chat.Announcements()
	require.NotEmpty(t, chat)
	assert.Equal(t, "Restarting Main soon", chat[0])
	assert.Equal(t, "Success! The **Main** server was restarted and is now loading back up.", chat[len(chat)-1])
}

func TestStartTwiceRejected(t *testing.T) {
	f := newFixture(5 * time.Minute)
	done := f.start(mainServer)
	f.clock.WaitForTimers(1)

	ok, err := f.coord.Start(context.Background(), mainServer, "again")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, "There is already a countdown running for **Main** server.", Reason(err))

	require.NoError(t, f.coord.Abort(context.Background(), mainServer))
	r := wait(t, done)
	assert.False(t, r.restarted)
	assert.NoError(t, r.err)
}

func TestAbortWithoutSession(t *testing.T) {
	f := newFixture(5 * time.Minute)

	err := f.coord.Abort(context.Background(), mainServer)
	assert.ErrorIs(t, err, ErrNothingToAbort)
	assert.NotEmpty(t, Reason(err))
	assert.Equal(t, Idle, f.coord.State(mainServer))
	assert.Empty(t, f.chat.Announcements())
}

func TestAbortIsScopedToOneServer(t *testing.T) {
	f := newFixture(5 * time.Minute)
	mainDone := f.start(mainServer)
	sideDone := f.start(sideServer)
	f.clock.WaitForTimers(2)

	require.NoError(t, f.coord.Abort(context.Background(), mainServer))
	r := wait(t, mainDone)
	assert.False(t, r.restarted)
	assert.NoError(t, r.err)

	assert.Contains(t, f.console.Commands("Main"), `servermsg "Restart has been ABORTED"`)
	assert.Contains(t, f.chat.Announcements(), "Auto restart ABORTED for the **Main** server.")
	assert.False(t, f.coord.IsRunning(mainServer))

	assert.True(t, f.coord.IsRunning(sideServer))
	assert.NotContains(t, f.console.Commands("Side"), `servermsg "Restart has been ABORTED"`)

	require.NoError(t, f.coord.Abort(context.Background(), sideServer))
	wait(t, sideDone)
	assert.Empty(t, f.restarter.Restarts())
}

func TestStartWhileAbortPending(t *testing.T) {
	f := newFixture(5 * time.Minute)
	closed := make(chan struct{})
	close(closed)
	f.coord.sessions["Main"] = &session{id: "s", state: CountingDown, aborted: true, abort: closed}

	ok, err := f.coord.Start(context.Background(), mainServer, "go")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAbortPending)
	assert.ErrorIs(t, f.coord.Abort(context.Background(), mainServer), ErrAbortPending)
}

func TestStartRequiresRunningServer(t *testing.T) {
	f := newFixture(5 * time.Minute)
	f.restarter.down["Main"] = true

	ok, err := f.coord.Start(context.Background(), mainServer, "go")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, []string{"Auto restart failed, **Main** is **NOT** running!"}, f.chat.Announcements())
	assert.Empty(t, f.console.Commands("Main"))
	assert.Equal(t, Idle, f.coord.State(mainServer))
}

func TestRestartFailureReported(t *testing.T) {
	f := newFixture(time.Minute)
	f.restarter.restartErr = errors.New("unit failed")
	done := f.start(mainServer)

	f.clock.WaitForTimers(1)
	f.waitForCommand(t, mainServer, `servermsg "The server will restart in 1 minute(s)!"`)
	f.clock.Advance(time.Minute)

	r := wait(t, done)
	assert.False(t, r.restarted)
	assert.Error(t, r.err)
	assert.Contains(t, f.chat.Announcements(), "There was a problem restarting the **Main** server.")
}

func TestContextCancelEndsCountdown(t *testing.T) {
	f := newFixture(5 * time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan result, 1)
	go func() {
		ok, err := f.coord.Start(ctx, mainServer, "go")
		done <- result{ok, err}
	}()
	f.clock.WaitForTimers(1)

	cancel()
	r := wait(t, done)
	assert.False(t, r.restarted)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, Idle, f.coord.State(mainServer))
	assert.Contains(t, f.console.Commands("Main"), `servermsg "Restart has been cancelled"`)
}

func TestScheduleAnnouncesEachThresholdOnce(t *testing.T) {
	s := newSchedule(5 * time.Minute)

	steps := []struct {
		remaining time.Duration
		want      time.Duration
		ok        bool
	}{
		{5 * time.Minute, 5 * time.Minute, true},
		{4*time.Minute + 55*time.Second, 0, false},
		{3*time.Minute + 50*time.Second, 4 * time.Minute, true},
		{65 * time.Second, 2 * time.Minute, true},
		{60 * time.Second, time.Minute, true},
		{60 * time.Second, 0, false},
		{20 * time.Second, 30 * time.Second, true},
		{20 * time.Second, 0, false},
		{5 * time.Second, 10 * time.Second, true},
	}
	for _, step := range steps {
		got, ok := s.due(step.remaining)
		assert.Equal(t, step.ok, ok, "remaining %v", step.remaining)
		assert.Equal(t, step.want, got, "remaining %v", step.remaining)
	}
}
