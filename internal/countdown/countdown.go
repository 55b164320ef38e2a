// Package countdown runs abortable, announced delayed restarts.
//
// A countdown belongs to one server. While it runs, players and the chat
// channel are told how long is left; an operator may abort it; when it
// reaches zero the restart sink is invoked. Servers are independent:
// aborting one never touches another.
//
// With a shared state store, sessions are visible to every process using
// it: a per-server lock file keeps at most one countdown alive per
// server, and an abort requested from another process is picked up on
// the next tick.
package countdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/zomboctl/internal/clock"
	"github.com/roach88/zomboctl/internal/command"
	"github.com/roach88/zomboctl/internal/lockfile"
	"github.com/roach88/zomboctl/internal/notify"
	"github.com/roach88/zomboctl/internal/restart"
	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/store"
)

// SessionLock is the store lock kind held by a live countdown.
const SessionLock = "countdown"

// State is the phase of a server's countdown.
type State int

const (
	Idle State = iota
	CountingDown
	Restarting
)

func (s State) String() string {
	switch s {
	case CountingDown:
		return "counting_down"
	case Restarting:
		return "restarting"
	default:
		return "idle"
	}
}

// Config wires a Coordinator. Channel, Chat and Restarter are required.
type Config struct {
	// Channel carries in-game notices.
	Channel command.Channel

	// Chat receives operator-facing notices.
	Chat notify.Announcer

	Restarter restart.Sink

	// Duration of every countdown. Default 5m.
	Duration time.Duration

	// Tick is how often the countdown wakes up. Default 5s.
	Tick time.Duration

	// Sessions shares countdowns with other processes opening the same
	// state database. Nil keeps them local to this Coordinator.
	Sessions *store.Store

	Clock  clock.Clock
	Logger *slog.Logger
}

type session struct {
	id      string
	state   State
	aborted bool
	abort   chan struct{}
	lock    *lockfile.Lock
}

// Coordinator owns the countdown sessions of every server. At most one
// session exists per server.
type Coordinator struct {
	channel   command.Channel
	chat      notify.Announcer
	restarter restart.Sink
	duration  time.Duration
	tick      time.Duration
	shared    *store.Store
	clock     clock.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New returns a Coordinator with no sessions.
func New(cfg Config) *Coordinator {
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Minute
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		channel:   cfg.Channel,
		chat:      cfg.Chat,
		restarter: cfg.Restarter,
		duration:  cfg.Duration,
		tick:      cfg.Tick,
		shared:    cfg.Sessions,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		sessions:  make(map[string]*session),
	}
}

// IsRunning reports whether the server has a countdown in progress in
// this Coordinator.
func (c *Coordinator) IsRunning(id server.Identity) bool {
	return c.State(id) == CountingDown
}

// State returns the phase of the server's countdown.
func (c *Coordinator) State(id server.Identity) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id.Name]; ok {
		return s.state
	}
	return Idle
}

// Start announces a restart, counts down and restarts the server. It
// blocks until the restart finished, the countdown was aborted or ctx
// ended, and reports whether the server was restarted.
//
// A refused start returns a *RefusedError wrapping ErrAlreadyRunning,
// ErrAbortPending or ErrNotRunning.
func (c *Coordinator) Start(ctx context.Context, id server.Identity, announce string) (bool, error) {
	s, err := c.register(ctx, id)
	if err != nil {
		return false, err
	}
	log := c.logger.With("server", id.Name, "session", s.id)
	defer c.release(context.WithoutCancel(ctx), log, id, s)

	running, err := c.restarter.IsRunning(ctx, id)
	if err != nil {
		log.Error("cannot check game process", "error", err)
	}
	if !running {
		c.say(ctx, log, fmt.Sprintf("Auto restart failed, **%s** is **NOT** running!", id.Name))
		return false, refuse(id.Name, ErrNotRunning, "**%s** is **NOT** running.", id.Name)
	}

	c.say(ctx, log, announce)
	log.Info("countdown started", "duration", c.duration)

	completed, err := c.countdown(ctx, log, id, s)
	if !completed {
		return false, err
	}

	if c.toRestarting(ctx, log, id, s) {
		return false, c.aborted(ctx, log, id)
	}

	if err := c.restarter.Restart(ctx, id); err != nil {
		log.Error("restart failed", "error", err)
		c.say(ctx, log, fmt.Sprintf("There was a problem restarting the **%s** server.", id.Name))
		return false, err
	}
	c.say(ctx, log, fmt.Sprintf("Success! The **%s** server was restarted and is now loading back up.", id.Name))
	return true, nil
}

// Abort requests the server's countdown to stop. A countdown owned by
// another process is flagged through the shared store and stops on its
// next tick. It returns ErrNothingToAbort when there is no countdown to
// stop.
func (c *Coordinator) Abort(ctx context.Context, id server.Identity) error {
	c.mu.Lock()
	s, ok := c.sessions[id.Name]
	if !ok {
		c.mu.Unlock()
		if c.shared == nil {
			return refuse(id.Name, ErrNothingToAbort, "There is no countdown running for **%s** server.", id.Name)
		}
		return c.abortShared(ctx, id)
	}
	defer c.mu.Unlock()

	switch {
	case s.state == Restarting:
		return refuse(id.Name, ErrNothingToAbort, "**%s** server is already restarting.", id.Name)
	case s.aborted:
		return refuse(id.Name, ErrAbortPending, "Countdown abort in progress for **%s** server.", id.Name)
	}
	s.aborted = true
	close(s.abort)
	c.logger.Info("countdown abort requested", "server", id.Name, "session", s.id)
	return nil
}

func (c *Coordinator) abortShared(ctx context.Context, id server.Identity) error {
	row, err := c.shared.Countdown(ctx, id.Name)
	if errors.Is(err, store.ErrNoCountdown) {
		return refuse(id.Name, ErrNothingToAbort, "There is no countdown running for **%s** server.", id.Name)
	}
	if err != nil {
		return err
	}

	live, err := c.shared.Locked(SessionLock, id.Name)
	if err != nil {
		return err
	}
	if !live {
		c.logger.Warn("dropping countdown left by a dead process", "server", id.Name, "session", row.SessionID, "pid", row.PID)
		if err := c.shared.ReleaseCountdown(ctx, id.Name, row.SessionID); err != nil {
			c.logger.Warn("dropping countdown failed", "server", id.Name, "error", err)
		}
		return refuse(id.Name, ErrNothingToAbort, "There is no countdown running for **%s** server.", id.Name)
	}

	switch {
	case row.State == Restarting.String():
		return refuse(id.Name, ErrNothingToAbort, "**%s** server is already restarting.", id.Name)
	case row.AbortRequested:
		return refuse(id.Name, ErrAbortPending, "Countdown abort in progress for **%s** server.", id.Name)
	}
	ok, err := c.shared.RequestAbort(ctx, id.Name, row.SessionID, CountingDown.String())
	if err != nil {
		return err
	}
	if !ok {
		return refuse(id.Name, ErrNothingToAbort, "There is no countdown running for **%s** server.", id.Name)
	}
	c.logger.Info("countdown abort requested", "server", id.Name, "session", row.SessionID, "pid", row.PID)
	return nil
}

func (c *Coordinator) register(ctx context.Context, id server.Identity) (*session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[id.Name]; ok {
		aborted := s.aborted
		c.mu.Unlock()
		if aborted {
			return nil, refuse(id.Name, ErrAbortPending, "Countdown abort in progress for **%s** server.", id.Name)
		}
		return nil, refuse(id.Name, ErrAlreadyRunning, "There is already a countdown running for **%s** server.", id.Name)
	}
	s := &session{
		id:    uuid.Must(uuid.NewV7()).String(),
		state: CountingDown,
		abort: make(chan struct{}),
	}
	c.sessions[id.Name] = s
	c.mu.Unlock()

	if c.shared == nil {
		return s, nil
	}
	if err := c.claim(ctx, id, s); err != nil {
		c.mu.Lock()
		if c.sessions[id.Name] == s {
			delete(c.sessions, id.Name)
		}
		c.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// claim takes the server's countdown lock and records the session.
func (c *Coordinator) claim(ctx context.Context, id server.Identity, s *session) error {
	lock, err := c.shared.Lock(SessionLock, id.Name)
	if errors.Is(err, lockfile.ErrHeld) {
		if row, err := c.shared.Countdown(ctx, id.Name); err == nil && row.AbortRequested {
			return refuse(id.Name, ErrAbortPending, "Countdown abort in progress for **%s** server.", id.Name)
		}
		return refuse(id.Name, ErrAlreadyRunning, "There is already a countdown running for **%s** server.", id.Name)
	}
	if err != nil {
		return fmt.Errorf("countdown lock %s: %w", id.Name, err)
	}
	err = c.shared.ClaimCountdown(ctx, store.CountdownSession{
		Server:    id.Name,
		SessionID: s.id,
		PID:       os.Getpid(),
		State:     CountingDown.String(),
		StartedAt: c.clock.Now(),
	})
	if err != nil {
		lock.Unlock()
		return err
	}
	s.lock = lock
	return nil
}

// release ends the session. It is safe to call more than once.
func (c *Coordinator) release(ctx context.Context, log *slog.Logger, id server.Identity, s *session) {
	c.mu.Lock()
	if c.sessions[id.Name] == s {
		delete(c.sessions, id.Name)
	}
	lock := s.lock
	s.lock = nil
	c.mu.Unlock()

	if lock == nil {
		return
	}
	if err := c.shared.ReleaseCountdown(ctx, id.Name, s.id); err != nil {
		log.Warn("releasing countdown session failed", "error", err)
	}
	if err := lock.Unlock(); err != nil {
		log.Warn("releasing countdown lock failed", "error", err)
	}
}

// abortRequested reports whether another process flagged the session.
func (c *Coordinator) abortRequested(ctx context.Context, log *slog.Logger, id server.Identity, s *session) bool {
	c.mu.Lock()
	shared := s.lock != nil
	c.mu.Unlock()
	if !shared || ctx.Err() != nil {
		return false
	}
	requested, err := c.shared.AbortRequested(ctx, id.Name, s.id)
	if err != nil {
		log.Warn("cannot read abort flag", "error", err)
		return false
	}
	if requested {
		c.mu.Lock()
		s.aborted = true
		c.mu.Unlock()
	}
	return requested
}

// toRestarting moves the session past the point of abort. It reports
// true when an abort from another process got in first.
func (c *Coordinator) toRestarting(ctx context.Context, log *slog.Logger, id server.Identity, s *session) bool {
	c.mu.Lock()
	s.state = Restarting
	shared := s.lock != nil
	c.mu.Unlock()
	if !shared {
		return false
	}
	if err := c.shared.SetCountdownState(ctx, id.Name, s.id, Restarting.String()); err != nil {
		log.Warn("recording restart state failed", "error", err)
	}
	return c.abortRequested(ctx, log, id, s)
}

// countdown returns true when the full duration elapsed.
func (c *Coordinator) countdown(ctx context.Context, log *slog.Logger, id server.Identity, s *session) (bool, error) {
	start := c.clock.Now()
	ticker := c.clock.NewTicker(c.tick)
	defer ticker.Stop()

	notices := newSchedule(c.duration)
	for {
		select {
		case <-s.abort:
			return false, c.aborted(ctx, log, id)
		default:
		}
		if c.abortRequested(ctx, log, id, s) {
			return false, c.aborted(ctx, log, id)
		}

		remaining := (c.duration - c.clock.Now().Sub(start)).Round(c.tick)
		if remaining <= 0 {
			return true, nil
		}
		if at, ok := notices.due(remaining); ok {
			c.progress(ctx, log, id, at)
		}

		select {
		case <-ctx.Done():
			log.Warn("countdown cancelled", "error", ctx.Err())
			notice, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			c.release(notice, log, id, s)
			c.tell(notice, log, id, "Restart has been cancelled")
			c.say(notice, log, fmt.Sprintf("Auto restart cancelled for the **%s** server.", id.Name))
			return false, ctx.Err()
		case <-s.abort:
			return false, c.aborted(ctx, log, id)
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) aborted(ctx context.Context, log *slog.Logger, id server.Identity) error {
	log.Info("countdown aborted")
	c.tell(ctx, log, id, "Restart has been ABORTED")
	c.say(ctx, log, fmt.Sprintf("Auto restart ABORTED for the **%s** server.", id.Name))
	return nil
}

func (c *Coordinator) progress(ctx context.Context, log *slog.Logger, id server.Identity, at time.Duration) {
	var left string
	if at >= time.Minute {
		left = fmt.Sprintf("%d minute(s)", int(at/time.Minute))
	} else {
		left = fmt.Sprintf("%d seconds", int(at/time.Second))
	}
	log.Debug("countdown notice", "remaining", at)
	c.tell(ctx, log, id, fmt.Sprintf("The server will restart in %s!", left))
	c.say(ctx, log, fmt.Sprintf("**%s** server will restart in %s.", id.Name, left))
}

// tell sends an in-game notice. Failures are logged only.
func (c *Coordinator) tell(ctx context.Context, log *slog.Logger, id server.Identity, text string) {
	if err := command.Message(ctx, c.channel, id, text); err != nil {
		log.Warn("in-game notice failed", "text", text, "error", err)
	}
}

// say posts a chat notice. Failures are logged only.
func (c *Coordinator) say(ctx context.Context, log *slog.Logger, text string) {
	if err := c.chat.Announce(ctx, text); err != nil {
		log.Warn("chat notice failed", "text", text, "error", err)
	}
}

// schedule tracks which notice thresholds were already announced.
type schedule struct {
	thresholds []time.Duration // descending
	done       map[time.Duration]bool
}

func newSchedule(total time.Duration) *schedule {
	var ts []time.Duration
	for m := total / time.Minute; m >= 1; m-- {
		ts = append(ts, m*time.Minute)
	}
	for _, final := range []time.Duration{30 * time.Second, 10 * time.Second} {
		if final < total {
			ts = append(ts, final)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] > ts[j] })
	return &schedule{thresholds: ts, done: make(map[time.Duration]bool)}
}

// due returns the threshold to announce for remaining, if any. Every
// threshold at or above remaining is consumed, so a late tick announces
// only the most recent one and nothing is announced twice.
func (s *schedule) due(remaining time.Duration) (time.Duration, bool) {
	var (
		pick  time.Duration
		found bool
	)
	for _, t := range s.thresholds {
		if t < remaining || s.done[t] {
			continue
		}
		s.done[t] = true
		pick, found = t, true
	}
	return pick, found
}
