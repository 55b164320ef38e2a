package gamedb

import (
	"fmt"

	"zombiezen.com/go/sqlite"
)

func scanTicket(stmt *sqlite.Stmt) Ticket {
	t := Ticket{
		ID:      stmt.ColumnInt64(0),
		Message: stmt.ColumnText(1),
		Author:  stmt.ColumnText(2),
	}
	if !stmt.ColumnIsNull(3) {
		answered := stmt.ColumnInt64(3)
		t.AnsweredID = &answered
	}
	return t
}

// MaxID returns the highest ticket id, or 0 for an empty table.
func (s *Session) MaxID() (int64, error) {
	var maxID int64
	err := s.exec("SELECT MAX(id) FROM tickets", nil, func(stmt *sqlite.Stmt) error {
		if !stmt.ColumnIsNull(0) {
			maxID = stmt.ColumnInt64(0)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("max ticket id: %w", err)
	}
	return maxID, nil
}

// Range returns the lowest and highest ticket ids. ok is false when the
// table is empty.
func (s *Session) Range() (minID, maxID int64, ok bool, err error) {
	err = s.exec("SELECT MIN(id), MAX(id) FROM tickets", nil, func(stmt *sqlite.Stmt) error {
		if stmt.ColumnIsNull(0) {
			return nil
		}
		minID, maxID, ok = stmt.ColumnInt64(0), stmt.ColumnInt64(1), true
		return nil
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("ticket id range: %w", err)
	}
	return minID, maxID, ok, nil
}

// After returns up to limit tickets with id greater than after, in id
// order. Answer rows are included.
func (s *Session) After(after int64, limit int) ([]Ticket, error) {
	var out []Ticket
	err := s.exec(
		"SELECT id, message, author, answeredID FROM tickets WHERE id > ? ORDER BY id LIMIT ?",
		[]any{after, limit},
		func(stmt *sqlite.Stmt) error {
			out = append(out, scanTicket(stmt))
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("tickets after %d: %w", after, err)
	}
	return out, nil
}

// Get returns ticket id, or ErrNotFound.
func (s *Session) Get(id int64) (Ticket, error) {
	var (
		t     Ticket
		found bool
	)
	err := s.exec(
		"SELECT id, message, author, answeredID FROM tickets WHERE id = ?",
		[]any{id},
		func(stmt *sqlite.Stmt) error {
			t, found = scanTicket(stmt), true
			return nil
		})
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket %d: %w", id, err)
	}
	if !found {
		return Ticket{}, fmt.Errorf("ticket %d: %w", id, ErrNotFound)
	}
	return t, nil
}

// AnswerFor returns the first row answering ticket id, or nil.
func (s *Session) AnswerFor(id int64) (*Reply, error) {
	var reply *Reply
	err := s.exec(
		"SELECT author, message FROM tickets WHERE answeredID = ? ORDER BY id LIMIT 1",
		[]any{id},
		func(stmt *sqlite.Stmt) error {
			reply = &Reply{Author: stmt.ColumnText(0), Message: stmt.ColumnText(1)}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("answer for ticket %d: %w", id, err)
	}
	return reply, nil
}

// Player returns the whitelist row for username keyed by column name.
// NULL columns are present as "".
func (s *Session) Player(username string) (map[string]string, error) {
	var row map[string]string
	err := s.exec("SELECT * FROM whitelist WHERE username = ?", []any{username}, func(stmt *sqlite.Stmt) error {
		if row != nil {
			return nil
		}
		row = make(map[string]string, stmt.ColumnCount())
		for i := 0; i < stmt.ColumnCount(); i++ {
			if stmt.ColumnIsNull(i) {
				row[stmt.ColumnName(i)] = ""
				continue
			}
			row[stmt.ColumnName(i)] = stmt.ColumnText(i)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("whitelist %q: %w", username, err)
	}
	if row == nil {
		return nil, fmt.Errorf("whitelist %q: %w", username, ErrNotFound)
	}
	return row, nil
}
