package gamedb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/testutil"
)

func testServer(t *testing.T) server.Identity {
	return server.Identity{Name: "Main", SystemUser: "pzmain", Home: t.TempDir()}
}

func openSession(t *testing.T, id server.Identity) *Session {
	t.Helper()
	db := &DB{BusyTimeout: 50 * time.Millisecond}
	s, err := db.Open(context.Background(), id)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := (&DB{}).Open(context.Background(), testServer(t))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmptyTable(t *testing.T) {
	id := testServer(t)
	testutil.NewGameDB(t, id)
	s := openSession(t, id)

	maxID, err := s.MaxID()
	require.NoError(t, err)
	assert.Zero(t, maxID)

	_, _, ok, err := s.Range()
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := s.After(0, 20)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTicketQueries(t *testing.T) {
	id := testServer(t)
	game := testutil.NewGameDB(t, id)
	game.AddTicket(3, "alice", "stuck in wall")
	game.AddTicket(7, "bob", "lost my car")
	game.AddAnswer(9, 7, "admin", "found it")

	s := openSession(t, id)

	minID, maxID, ok, err := s.Range()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), minID)
	assert.Equal(t, int64(9), maxID)

	rows, err := s.After(3, 20)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Ticket{ID: 7, Message: "lost my car", Author: "bob"}, rows[0])
	assert.True(t, rows[1].IsAnswer())
	assert.Equal(t, int64(7), *rows[1].AnsweredID)

	limited, err := s.After(0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(3), limited[0].ID)

	reply, err := s.AnswerFor(7)
	require.NoError(t, err)
	assert.Equal(t, &Reply{Author: "admin", Message: "found it"}, reply)

	none, err := s.AnswerFor(3)
	require.NoError(t, err)
	assert.Nil(t, none)

	got, err := s.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Author)

	_, err = s.Get(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlayer(t *testing.T) {
	id := testServer(t)
	game := testutil.NewGameDB(t, id)
	game.AddPlayer("Bob", "", "2")
	game.AddPlayer("Root", "admin", "7")

	s := openSession(t, id)

	bob, err := s.Player("Bob")
	require.NoError(t, err)
	assert.Equal(t, "", bob["accesslevel"])
	assert.Equal(t, "2", bob["role"])

	root, err := s.Player("Root")
	require.NoError(t, err)
	assert.Equal(t, "admin", root["accesslevel"])

	_, err = s.Player("Nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLockedDatabase(t *testing.T) {
	id := testServer(t)
	game := testutil.NewGameDB(t, id)
	game.AddTicket(1, "a", "b")

	unlock := game.Lock()
	defer unlock()

	db := &DB{BusyTimeout: 20 * time.Millisecond}
	s, err := db.Open(context.Background(), id)
	if err == nil {
		defer s.Close()
		_, err = s.MaxID()
	}
	require.Error(t, err)
	assert.True(t, IsLocked(err), "got %v", err)
}

func TestDBPlayerLookup(t *testing.T) {
	id := testServer(t)
	game := testutil.NewGameDB(t, id)
	game.AddPlayer("Bob", "", "2")

	db := &DB{}
	row, err := db.Player(context.Background(), id, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", row["username"])

	_, err = db.Player(context.Background(), id, "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
