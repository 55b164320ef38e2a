package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CountdownSession is the shared record of a restart countdown.
type CountdownSession struct {
	Server         string
	SessionID      string
	PID            int
	State          string
	AbortRequested bool
	StartedAt      time.Time
}

// ErrNoCountdown is returned when a server has no countdown row.
var ErrNoCountdown = errors.New("no countdown session")

// ClaimCountdown records c as the server's countdown, replacing any row
// left behind by a session that died. Callers hold the countdown lock.
func (s *Store) ClaimCountdown(ctx context.Context, c CountdownSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO countdown_sessions
		(server_name, session_id, pid, state, abort_requested, started_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(server_name) DO UPDATE SET
			session_id = excluded.session_id,
			pid = excluded.pid,
			state = excluded.state,
			abort_requested = 0,
			started_at = excluded.started_at
	`, c.Server, c.SessionID, c.PID, c.State, c.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("claim countdown %s: %w", c.Server, err)
	}
	return nil
}

// Countdown returns the server's countdown row, or ErrNoCountdown.
func (s *Store) Countdown(ctx context.Context, server string) (CountdownSession, error) {
	var (
		c       CountdownSession
		abort   int
		started string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT server_name, session_id, pid, state, abort_requested, started_at
		FROM countdown_sessions WHERE server_name = ?
	`, server).Scan(&c.Server, &c.SessionID, &c.PID, &c.State, &abort, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return CountdownSession{}, fmt.Errorf("countdown %s: %w", server, ErrNoCountdown)
	}
	if err != nil {
		return CountdownSession{}, fmt.Errorf("countdown %s: %w", server, err)
	}
	c.AbortRequested = abort != 0
	at, err := time.Parse(timeLayout, started)
	if err != nil {
		return CountdownSession{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	c.StartedAt = at
	return c, nil
}

// SetCountdownState updates the state of a session.
func (s *Store) SetCountdownState(ctx context.Context, server, sessionID, state string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE countdown_sessions SET state = ? WHERE server_name = ? AND session_id = ?",
		state, server, sessionID,
	)
	if err != nil {
		return fmt.Errorf("set countdown state %s: %w", server, err)
	}
	return nil
}

// RequestAbort flags a session for abort. It reports false when the
// session is gone, already flagged, or no longer in state.
func (s *Store) RequestAbort(ctx context.Context, server, sessionID, state string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE countdown_sessions SET abort_requested = 1
		WHERE server_name = ? AND session_id = ? AND state = ? AND abort_requested = 0
	`, server, sessionID, state)
	if err != nil {
		return false, fmt.Errorf("request abort %s: %w", server, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("request abort %s: %w", server, err)
	}
	return n == 1, nil
}

// AbortRequested reports whether the session was flagged for abort.
func (s *Store) AbortRequested(ctx context.Context, server, sessionID string) (bool, error) {
	var abort int
	err := s.db.QueryRowContext(ctx,
		"SELECT abort_requested FROM countdown_sessions WHERE server_name = ? AND session_id = ?",
		server, sessionID,
	).Scan(&abort)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("abort requested %s: %w", server, err)
	}
	return abort != 0, nil
}

// ReleaseCountdown deletes the session's row. A row claimed since by
// another session is left alone.
func (s *Store) ReleaseCountdown(ctx context.Context, server, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM countdown_sessions WHERE server_name = ? AND session_id = ?",
		server, sessionID,
	)
	if err != nil {
		return fmt.Errorf("release countdown %s: %w", server, err)
	}
	return nil
}
