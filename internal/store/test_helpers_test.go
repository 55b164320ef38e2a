package store

import (
	"path/filepath"
	"testing"
	"time"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTracking creates a tracking row with minimal required fields.
func createTestTracking(server string, ticketID int64, messageID string) TicketTracking {
	return TicketTracking{
		Server:      server,
		TicketID:    ticketID,
		MessageID:   messageID,
		LastState:   StateUnanswered,
		ProcessedAt: testTime,
	}
}

// mustTrack tracks t or fails the test.
func mustTrack(t *testing.T, s *Store, tr TicketTracking) {
	t.Helper()
	if _, err := s.Track(t.Context(), tr); err != nil {
		t.Fatalf("Track(%s/%d) failed: %v", tr.Server, tr.TicketID, err)
	}
}
