package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TicketState is the rendered state of a mirrored ticket.
type TicketState string

const (
	StateUnanswered TicketState = "unanswered"
	StateAnswered   TicketState = "answered"
)

// TicketTracking links a foreign ticket to the chat message mirroring it.
type TicketTracking struct {
	Server      string
	TicketID    int64
	MessageID   string
	ThreadID    string
	LastState   TicketState
	ProcessedAt time.Time
}

// ErrNotTracked is returned by Tracking for unknown tickets.
var ErrNotTracked = errors.New("ticket not tracked")

const timeLayout = time.RFC3339Nano

// Track records that a ticket has been mirrored.
// Uses ON CONFLICT DO NOTHING for idempotency - tracking an already
// tracked ticket is silently ignored and reports false.
func (s *Store) Track(ctx context.Context, t TicketTracking) (bool, error) {
	if t.LastState == "" {
		t.LastState = StateUnanswered
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_notifications
		(server_name, ticket_id, message_id, thread_id, last_state, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_name, ticket_id) DO NOTHING
	`,
		t.Server,
		t.TicketID,
		t.MessageID,
		t.ThreadID,
		string(t.LastState),
		t.ProcessedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("track ticket %s/%d: %w", t.Server, t.TicketID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("track ticket %s/%d: %w", t.Server, t.TicketID, err)
	}
	return n == 1, nil
}

// IsTracked reports whether the ticket already has a tracking row.
func (s *Store) IsTracked(ctx context.Context, server string, ticketID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM ticket_notifications WHERE server_name = ? AND ticket_id = ?",
		server, ticketID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is tracked %s/%d: %w", server, ticketID, err)
	}
	return true, nil
}

// Tracking returns the tracking row for a ticket, or ErrNotTracked.
func (s *Store) Tracking(ctx context.Context, server string, ticketID int64) (TicketTracking, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT server_name, ticket_id, message_id, thread_id, last_state, processed_at
		FROM ticket_notifications
		WHERE server_name = ? AND ticket_id = ?
	`, server, ticketID)
	t, err := scanTracking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TicketTracking{}, fmt.Errorf("ticket %s/%d: %w", server, ticketID, ErrNotTracked)
	}
	if err != nil {
		return TicketTracking{}, fmt.Errorf("ticket %s/%d: %w", server, ticketID, err)
	}
	return t, nil
}

// TrackedInRange returns tracking rows with minID <= ticket_id <= maxID,
// ordered by ticket_id.
func (s *Store) TrackedInRange(ctx context.Context, server string, minID, maxID int64) ([]TicketTracking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_name, ticket_id, message_id, thread_id, last_state, processed_at
		FROM ticket_notifications
		WHERE server_name = ? AND ticket_id BETWEEN ? AND ?
		ORDER BY ticket_id ASC
	`, server, minID, maxID)
	if err != nil {
		return nil, fmt.Errorf("tracked in range: %w", err)
	}
	defer rows.Close()

	var out []TicketTracking
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, fmt.Errorf("tracked in range: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tracked in range: %w", err)
	}
	return out, nil
}

// UpdateState records the state last rendered for a ticket.
func (s *Store) UpdateState(ctx context.Context, server string, ticketID int64, state TicketState) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE ticket_notifications SET last_state = ? WHERE server_name = ? AND ticket_id = ?",
		string(state), server, ticketID,
	)
	if err != nil {
		return fmt.Errorf("update state %s/%d: %w", server, ticketID, err)
	}
	return nil
}

// Untrack deletes the tracking row for a ticket.
func (s *Store) Untrack(ctx context.Context, server string, ticketID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM ticket_notifications WHERE server_name = ? AND ticket_id = ?",
		server, ticketID,
	)
	if err != nil {
		return fmt.Errorf("untrack %s/%d: %w", server, ticketID, err)
	}
	return nil
}

// PruneBelow deletes tracking rows with ticket_id < minID and returns
// how many were removed.
func (s *Store) PruneBelow(ctx context.Context, server string, minID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM ticket_notifications WHERE server_name = ? AND ticket_id < ?",
		server, minID,
	)
	if err != nil {
		return 0, fmt.Errorf("prune %s below %d: %w", server, minID, err)
	}
	return res.RowsAffected()
}

// Reset forgets everything known about a server: all tracking rows and
// its watermark. Used when the foreign table was reset.
func (s *Store) Reset(ctx context.Context, server string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ticket_notifications WHERE server_name = ?", server); err != nil {
			return fmt.Errorf("reset %s: %w", server, err)
		}
		if err := setWatermark(ctx, tx, server, 0, at); err != nil {
			return fmt.Errorf("reset %s: %w", server, err)
		}
		return nil
	})
}

// Watermark returns the highest processed foreign id for server, or 0.
func (s *Store) Watermark(ctx context.Context, server string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT last_ticket_id FROM reconcile_watermarks WHERE server_name = ?", server,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("watermark %s: %w", server, err)
	}
	return id, nil
}

// SetWatermark stores the highest processed foreign id for server.
func (s *Store) SetWatermark(ctx context.Context, server string, id int64, at time.Time) error {
	if err := setWatermark(ctx, s.db, server, id, at); err != nil {
		return fmt.Errorf("set watermark %s: %w", server, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setWatermark(ctx context.Context, db execer, server string, id int64, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reconcile_watermarks (server_name, last_ticket_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(server_name) DO UPDATE SET
			last_ticket_id = excluded.last_ticket_id,
			updated_at = excluded.updated_at
	`, server, id, at.UTC().Format(timeLayout))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTracking(row scanner) (TicketTracking, error) {
	var (
		t         TicketTracking
		state     string
		processed string
	)
	if err := row.Scan(&t.Server, &t.TicketID, &t.MessageID, &t.ThreadID, &state, &processed); err != nil {
		return TicketTracking{}, err
	}
	t.LastState = TicketState(state)
	at, err := time.Parse(timeLayout, processed)
	if err != nil {
		return TicketTracking{}, fmt.Errorf("parse processed_at %q: %w", processed, err)
	}
	t.ProcessedAt = at
	return t, nil
}
