// Package gamedb reads the SQLite database owned by the game server.
//
// The game process writes the database without coordinating with us, so
// every connection is opened read-only and short-lived: one Session per
// reconciler poll or per lookup. A database held locked by the game is
// reported as ErrLocked so callers can retry on a later cycle.
package gamedb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/roach88/zomboctl/internal/server"
)

var (
	// ErrNotFound is returned when the database file or a requested row
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLocked is returned when the game holds a lock on the database
	// longer than the busy timeout.
	ErrLocked = errors.New("game database is locked")
)

// IsLocked reports whether err is or wraps ErrLocked.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// Ticket is a row of the game's tickets table. A non-nil AnsweredID
// means the row is an answer to ticket *AnsweredID.
type Ticket struct {
	ID         int64
	Message    string
	Author     string
	AnsweredID *int64
}

// IsAnswer reports whether the row answers another ticket.
func (t Ticket) IsAnswer() bool { return t.AnsweredID != nil }

// Reply is the author and text of an answer row.
type Reply struct {
	Author  string
	Message string
}

// DB opens sessions on the game databases of configured servers.
type DB struct {
	// BusyTimeout bounds how long a query waits on the game's lock.
	// Default 2s.
	BusyTimeout time.Duration

	Logger *slog.Logger
}

// Open starts a read-only session on the server's game database. The
// session is interrupted when ctx is done.
func (d *DB) Open(ctx context.Context, id server.Identity) (*Session, error) {
	path := id.GameDBPath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("game database %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("game database %s: %w", path, err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		return nil, classify(fmt.Errorf("open game database %s: %w", path, err))
	}
	conn.SetInterrupt(ctx.Done())

	timeout := d.BusyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pragma := fmt.Sprintf("PRAGMA busy_timeout=%d", timeout.Milliseconds())
	if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("game database %s: %s: %w", path, pragma, err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("game database opened", "server", id.Name, "path", path)
	return &Session{conn: conn, path: path}, nil
}

// Player looks up one whitelist row in a short-lived session.
func (d *DB) Player(ctx context.Context, id server.Identity, username string) (map[string]string, error) {
	s, err := d.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Player(username)
}

// Session is one read-only connection. It is not safe for concurrent
// use.
type Session struct {
	conn *sqlite.Conn
	path string
}

// Close releases the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) exec(query string, args []any, fn func(stmt *sqlite.Stmt) error) error {
	err := sqlitex.Execute(s.conn, query, &sqlitex.ExecOptions{Args: args, ResultFunc: fn})
	if err != nil {
		return classify(fmt.Errorf("%s: %w", s.path, err))
	}
	return nil
}

// classify wraps busy and locked failures with ErrLocked.
func classify(err error) error {
	switch sqlite.ErrCode(err).ToPrimary() {
	case sqlite.ResultBusy, sqlite.ResultLocked:
		return fmt.Errorf("%w: %w", ErrLocked, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "database is locked") {
		return fmt.Errorf("%w: %w", ErrLocked, err)
	}
	return err
}
