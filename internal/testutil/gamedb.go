package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/roach88/zomboctl/internal/server"
)

const gameSchema = `
CREATE TABLE tickets (
	id INTEGER PRIMARY KEY,
	message TEXT,
	author TEXT,
	answeredID INTEGER
);
CREATE TABLE whitelist (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT,
	accesslevel TEXT,
	role TEXT
);`

// GameDB is a writable stand-in for the database a game server owns.
// It uses a rollback journal like a stock server, so Lock blocks
// readers. Writes wait for in-flight readers to finish.
type GameDB struct {
	t    testing.TB
	Path string
	conn *sqlite.Conn
}

// NewGameDB creates the game database for id under its home directory
// layout, creating parent directories.
func NewGameDB(t testing.TB, id server.Identity) *GameDB {
	t.Helper()
	path := id.GameDBPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		t.Fatalf("open game db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA busy_timeout=5000", nil); err != nil {
		t.Fatalf("busy timeout: %v", err)
	}
	if err := sqlitex.ExecuteScript(conn, gameSchema, nil); err != nil {
		t.Fatalf("create game schema: %v", err)
	}
	return &GameDB{t: t, Path: path, conn: conn}
}

func (g *GameDB) exec(query string, args ...any) {
	g.t.Helper()
	if err := sqlitex.Execute(g.conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		g.t.Fatalf("%s: %v", query, err)
	}
}

// AddTicket inserts a question row.
func (g *GameDB) AddTicket(id int64, author, message string) {
	g.t.Helper()
	g.exec("INSERT INTO tickets (id, message, author, answeredID) VALUES (?, ?, ?, NULL)", id, message, author)
}

// AddAnswer inserts a row answering ticket question.
func (g *GameDB) AddAnswer(id, question int64, author, message string) {
	g.t.Helper()
	g.exec("INSERT INTO tickets (id, message, author, answeredID) VALUES (?, ?, ?, ?)", id, message, author, question)
}

// DeleteTicket removes a row.
func (g *GameDB) DeleteTicket(id int64) {
	g.t.Helper()
	g.exec("DELETE FROM tickets WHERE id = ?", id)
}

// Wipe deletes every ticket, as a world reset does.
func (g *GameDB) Wipe() {
	g.t.Helper()
	g.exec("DELETE FROM tickets")
}

// AddPlayer inserts a whitelist row. Empty access values are stored as
// NULL.
func (g *GameDB) AddPlayer(username, accesslevel, role string) {
	g.t.Helper()
	g.exec("INSERT INTO whitelist (username, accesslevel, role) VALUES (?, NULLIF(?, ''), NULLIF(?, ''))",
		username, accesslevel, role)
}

// Lock takes an exclusive lock until the returned func is called.
func (g *GameDB) Lock() (unlock func()) {
	g.t.Helper()
	g.exec("BEGIN EXCLUSIVE")
	return func() { g.exec("COMMIT") }
}
