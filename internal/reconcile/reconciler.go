// Package reconcile mirrors the game's tickets table to the chat surface.
//
// The game writes its tickets table without telling anyone. A Reconciler
// polls it per server, posts a card for every new question exactly once,
// edits the card when the question is answered, and forgets tickets that
// disappear. Progress is kept in the local tracking store: a per-server
// watermark (highest foreign id processed) plus one row per mirrored
// ticket. A foreign MAX(id) below the watermark means the world was
// reset; tracking is dropped and the table is resynced from scratch.
//
// A poll holds the server's poll lock next to the tracking store for its
// whole run, so a one-off poll and a long-running mirror sharing the
// store never post the same ticket twice.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/zomboctl/internal/clock"
	"github.com/roach88/zomboctl/internal/gamedb"
	"github.com/roach88/zomboctl/internal/lockfile"
	"github.com/roach88/zomboctl/internal/notify"
	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/store"
)

// ErrPollInProgress is returned by Poll when another poll of the same
// server, in this process or another, has not finished. The overlapping
// poll is skipped.
var ErrPollInProgress = errors.New("poll already in progress")

// PollLock is the store lock kind held for the duration of a poll.
const PollLock = "poll"

// Opener starts read sessions on a server's game database.
// *gamedb.DB implements it.
type Opener interface {
	Open(ctx context.Context, id server.Identity) (*gamedb.Session, error)
}

// Config wires a Reconciler. Game, Store, Poster and Editor are
// required. Editor should be a *notify.Governor.
type Config struct {
	Servers []server.Identity

	Game   Opener
	Store  *store.Store
	Poster notify.Poster
	Editor notify.Editor

	// ThreadID is recorded on tracking rows when posts go to a thread.
	ThreadID string

	// Footer under every ticket card. Default DefaultFooter.
	Footer string

	// Interval between polls in Run. Default 30s.
	Interval time.Duration

	// BatchSize bounds the new rows read per query. Default 20.
	BatchSize int

	// MaxLockedRetries is how many consecutive locked polls Run tolerates
	// before pausing. Default 3.
	MaxLockedRetries int

	// LockedPause is how long Run backs off after MaxLockedRetries.
	// Default 5m.
	LockedPause time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Result summarizes one poll.
type Result struct {
	// Reset is true when the foreign table was found reset.
	Reset bool `json:"reset"`

	Posted    int   `json:"posted"`
	Answers   int   `json:"answers"`
	Skipped   int   `json:"skipped"`
	Edited    int   `json:"edited"`
	Untracked int   `json:"untracked"`
	Pruned    int64 `json:"pruned"`

	// EditFailures counts edits given up on this poll. They are retried
	// on the next poll since last_state was left unchanged.
	EditFailures int `json:"edit_failures"`

	Watermark int64 `json:"watermark"`
}

type serverState struct {
	poll   sync.Mutex
	synced bool
}

// Reconciler polls the tickets tables of the configured servers.
type Reconciler struct {
	servers     []server.Identity
	game        Opener
	store       *store.Store
	poster      notify.Poster
	editor      notify.Editor
	threadID    string
	footer      string
	interval    time.Duration
	batch       int
	maxLocked   int
	lockedPause time.Duration
	clock       clock.Clock
	logger      *slog.Logger

	mu    sync.Mutex
	state map[string]*serverState
}

// New returns a Reconciler. Nothing is polled until Poll or Run.
func New(cfg Config) *Reconciler {
	if cfg.Footer == "" {
		cfg.Footer = DefaultFooter
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxLockedRetries <= 0 {
		cfg.MaxLockedRetries = 3
	}
	if cfg.LockedPause <= 0 {
		cfg.LockedPause = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		servers:     cfg.Servers,
		game:        cfg.Game,
		store:       cfg.Store,
		poster:      cfg.Poster,
		editor:      cfg.Editor,
		threadID:    cfg.ThreadID,
		footer:      cfg.Footer,
		interval:    cfg.Interval,
		batch:       cfg.BatchSize,
		maxLocked:   cfg.MaxLockedRetries,
		lockedPause: cfg.LockedPause,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		state:       make(map[string]*serverState),
	}
}

func (r *Reconciler) serverState(id server.Identity) *serverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.state[id.Name]
	if !ok {
		st = &serverState{}
		r.state[id.Name] = st
	}
	return st
}

// Poll runs one reconciliation pass for id: reset detection, then new
// rows, then state updates. The first poll of each server after start,
// and any poll that detects a reset, drains every pending batch.
func (r *Reconciler) Poll(ctx context.Context, id server.Identity) (Result, error) {
	st := r.serverState(id)
	if !st.poll.TryLock() {
		return Result{}, ErrPollInProgress
	}
	defer st.poll.Unlock()

	logger := r.logger.With("server", id.Name)

	lock, err := r.store.Lock(PollLock, id.Name)
	if errors.Is(err, lockfile.ErrHeld) {
		logger.Debug("poll skipped, held by another process")
		return Result{}, ErrPollInProgress
	}
	if err != nil {
		return Result{}, fmt.Errorf("poll %s: %w", id.Name, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("releasing poll lock failed", "error", err)
		}
	}()

	sess, err := r.game.Open(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("poll %s: %w", id.Name, err)
	}
	defer sess.Close()

	var res Result
	watermark, err := r.store.Watermark(ctx, id.Name)
	if err != nil {
		return res, fmt.Errorf("poll %s: %w", id.Name, err)
	}
	maxID, err := sess.MaxID()
	if err != nil {
		return res, fmt.Errorf("poll %s: %w", id.Name, err)
	}

	drain := !st.synced
	if maxID < watermark {
		logger.Warn("ticket table reset detected, resyncing", "max_id", maxID, "watermark", watermark)
		if err := r.store.Reset(ctx, id.Name, r.clock.Now()); err != nil {
			return res, fmt.Errorf("poll %s: %w", id.Name, err)
		}
		watermark, drain, res.Reset = 0, true, true
	}

	postErr := r.postNew(ctx, sess, id, watermark, drain, &res)
	if postErr != nil && !errors.Is(postErr, errPost) {
		return res, fmt.Errorf("poll %s: %w", id.Name, postErr)
	}
	if err := r.syncStates(ctx, sess, id, &res); err != nil {
		return res, fmt.Errorf("poll %s: %w", id.Name, err)
	}
	if postErr != nil {
		return res, fmt.Errorf("poll %s: %w", id.Name, postErr)
	}

	st.synced = true
	logger.Debug("poll complete",
		"posted", res.Posted, "edited", res.Edited, "untracked", res.Untracked,
		"pruned", res.Pruned, "watermark", res.Watermark)
	return res, nil
}

// errPost marks a failed Post. The new-row phase stops at the failed row
// so it is retried next poll, but the state phase still runs.
var errPost = errors.New("post ticket")

func (r *Reconciler) postNew(ctx context.Context, sess *gamedb.Session, id server.Identity, watermark int64, drain bool, res *Result) error {
	res.Watermark = watermark
	for {
		rows, err := sess.After(watermark, r.batch)
		if err != nil {
			return err
		}
		for _, t := range rows {
			if err := r.mirror(ctx, sess, id, t, res); err != nil {
				return err
			}
			watermark = t.ID
			if err := r.store.SetWatermark(ctx, id.Name, watermark, r.clock.Now()); err != nil {
				return err
			}
			res.Watermark = watermark
		}
		if !drain || len(rows) < r.batch {
			return nil
		}
	}
}

// mirror posts t unless it is already tracked or is itself an answer.
func (r *Reconciler) mirror(ctx context.Context, sess *gamedb.Session, id server.Identity, t gamedb.Ticket, res *Result) error {
	tracked, err := r.store.IsTracked(ctx, id.Name, t.ID)
	if err != nil {
		return err
	}
	if tracked {
		res.Skipped++
		return nil
	}
	if t.IsAnswer() {
		res.Answers++
		return nil
	}

	answer, err := sess.AnswerFor(t.ID)
	if err != nil {
		return err
	}
	now := r.clock.Now()
	messageID, err := r.poster.Post(ctx, Render(id.Name, t, answer, now, r.footer))
	if err != nil {
		r.logger.Error("posting ticket failed", "server", id.Name, "ticket_id", t.ID, "error", err)
		return fmt.Errorf("%w %d: %w", errPost, t.ID, err)
	}

	if _, err := r.store.Track(ctx, store.TicketTracking{
		Server:      id.Name,
		TicketID:    t.ID,
		MessageID:   messageID,
		ThreadID:    r.threadID,
		LastState:   StateOf(answer),
		ProcessedAt: now,
	}); err != nil {
		return err
	}
	res.Posted++
	r.logger.Info("ticket posted", "server", id.Name, "ticket_id", t.ID, "message_id", messageID)
	return nil
}

func (r *Reconciler) syncStates(ctx context.Context, sess *gamedb.Session, id server.Identity, res *Result) error {
	minID, maxID, ok, err := sess.Range()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	pruned, err := r.store.PruneBelow(ctx, id.Name, minID)
	if err != nil {
		return err
	}
	res.Pruned = pruned

	tracked, err := r.store.TrackedInRange(ctx, id.Name, minID, maxID)
	if err != nil {
		return err
	}
	for _, tr := range tracked {
		if err := r.syncOne(ctx, sess, id, tr, res); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) syncOne(ctx context.Context, sess *gamedb.Session, id server.Identity, tr store.TicketTracking, res *Result) error {
	logger := r.logger.With("server", id.Name, "ticket_id", tr.TicketID, "message_id", tr.MessageID)

	t, err := sess.Get(tr.TicketID)
	if errors.Is(err, gamedb.ErrNotFound) {
		if err := r.store.Untrack(ctx, id.Name, tr.TicketID); err != nil {
			return err
		}
		res.Untracked++
		logger.Info("ticket deleted from game, untracked")
		return nil
	}
	if err != nil {
		return err
	}

	answer, err := sess.AnswerFor(t.ID)
	if err != nil {
		return err
	}
	state := StateOf(answer)
	if state == tr.LastState {
		return nil
	}

	if err := r.editor.Edit(ctx, tr.MessageID, Render(id.Name, t, answer, r.clock.Now(), r.footer)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.EditFailures++
		if errors.Is(err, notify.ErrEditBudget) {
			logger.Error("ticket edit abandoned after rate limiting", "error", err)
		} else {
			logger.Error("ticket edit failed", "error", err)
		}
		return nil
	}
	if err := r.store.UpdateState(ctx, id.Name, t.ID, state); err != nil {
		return err
	}
	res.Edited++
	logger.Info("ticket updated", "state", state)
	return nil
}

// Run polls every configured server until ctx is done, one goroutine per
// server. It returns ctx.Err().
func (r *Reconciler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, id := range r.servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, id)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Reconciler) loop(ctx context.Context, id server.Identity) {
	logger := r.logger.With("server", id.Name)
	logger.Info("ticket reconciler started", "interval", r.interval)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	locks := lockTracker{max: r.maxLocked}
	for {
		_, err := r.Poll(ctx, id)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err == nil, errors.Is(err, ErrPollInProgress):
		case gamedb.IsLocked(err):
			logger.Warn("game database locked", "attempt", locks.count+1, "error", err)
		default:
			logger.Error("poll failed", "error", err)
		}

		if locks.observe(err) {
			logger.Error("game database locked too many times, pausing", "pause", r.lockedPause)
			if err := clock.Sleep(ctx, r.clock, r.lockedPause); err != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// lockTracker counts consecutive locked polls.
type lockTracker struct {
	max   int
	count int
}

// observe records a poll result and reports whether the loop should
// pause. The count resets on success and after a pause. Errors other
// than a lock neither count nor reset.
func (l *lockTracker) observe(err error) (pause bool) {
	switch {
	case err == nil:
		l.count = 0
	case gamedb.IsLocked(err):
		l.count++
		if l.count >= l.max {
			l.count = 0
			return true
		}
	}
	return false
}
