package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zomboctl/internal/clock"
	"github.com/roach88/zomboctl/internal/gamedb"
	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/strategy"
	"github.com/roach88/zomboctl/internal/testutil"
	"github.com/roach88/zomboctl/internal/verify"
)

type fixture struct {
	id      server.Identity
	game    *testutil.GameDB
	console *testutil.FakeConsole
	clock   *clock.FakeClock
	op      *Operator

	mu     sync.Mutex
	online []string
}

// newFixture builds a server whose JRE marker selects java, with a game
// console that answers the players command from f.online.
func newFixture(t *testing.T, java string) *fixture {
	t.Helper()
	id := server.Identity{Name: "Main", SystemUser: "pzmain", Home: t.TempDir()}

	if java != "" {
		release := id.ReleaseFilePath()
		require.NoError(t, os.MkdirAll(filepath.Dir(release), 0o755))
		require.NoError(t, os.WriteFile(release, []byte("IMPLEMENTOR=\"Eclipse Adoptium\"\nJAVA_VERSION=\""+java+"\"\n"), 0o644))
	}

	table, err := strategy.Builtin()
	require.NoError(t, err)

	f := &fixture{
		id:      id,
		game:    testutil.NewGameDB(t, id),
		console: &testutil.FakeConsole{},
		clock:   clock.Fake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.console.Respond = f.respond
	f.op = New(Config{
		Verifier: verify.New(verify.Config{
			Source:  f.console,
			Channel: f.console,
			Clock:   f.clock,
			IDs:     testutil.NewFixedIDs(""),
		}),
		Strategies: table,
		Whitelist:  &gamedb.DB{BusyTimeout: 50 * time.Millisecond},
	})
	return f
}

func (f *fixture) setOnline(players ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = players
}

func (f *fixture) respond(_, cmd string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case cmd == "players":
		if f.online == nil {
			return nil
		}
		lines := []string{fmt.Sprintf("Players connected (%d):", len(f.online))}
		for _, p := range f.online {
			lines = append(lines, "-"+p)
		}
		return append(lines, "")
	case cmd == `godmode "Bob"`:
		if strings.Count(strings.Join(f.console.Commands("Main"), "\n"), `godmode "Bob"`) == 1 {
			return []string{"User Bob is now invincible."}
		}
		return []string{"User Bob is no more invincible."}
	case strings.HasPrefix(cmd, "teleportplayer "):
		return []string{`admin teleported Bob to Alice`}
	case strings.HasPrefix(cmd, "addxp "):
		return []string{"Added xp's to Bob"}
	}
	return nil
}

func (f *fixture) run(fn func(ctx context.Context) Report) <-chan Report {
	done := make(chan Report, 1)
	go func() { done <- fn(context.Background()) }()
	return done
}

func wait(t *testing.T, done <-chan Report) Report {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not finish")
		return Report{}
	}
}

func TestOnlineConfirmsAllPlayers(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.setOnline("Alice", "Bob")

	r := f.op.Online(context.Background(), f.id, "Bob", "Alice")
	assert.True(t, r.OK(), "%v", r.Err)
	assert.Equal(t, "**Bob** and **Alice** online on the **Main** server.", r.Status)
	assert.Equal(t, []string{"players"}, f.console.Commands("Main"))
}

func TestOnlineMissingPlayer(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.setOnline("Alice")

	r := f.op.Online(context.Background(), f.id, "Bob")
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.Contains(t, r.Err.Error(), "Bob")
	assert.True(t, f.console.AllClosed())
}

func TestHealB41(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.game.AddPlayer("Bob", "", "")
	f.setOnline("Bob")

	done := f.run(func(ctx context.Context) Report { return f.op.Heal(ctx, f.id, "Bob") })
	f.clock.WaitForTimers(2) // heal deadline and command spacing
	f.clock.Advance(time.Second)

	r := wait(t, done)
	assert.True(t, r.OK(), "%v", r.Err)
	assert.Equal(t, "I have healed **Bob** on the **Main** server!", r.Status)
	assert.Equal(t, []string{"players", `godmode "Bob"`, `godmode "Bob"`}, f.console.Commands("Main"))
	assert.True(t, f.console.AllClosed())
}

func TestHealRefusesPrivilegedPlayer(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.game.AddPlayer("Bob", "admin", "")
	f.setOnline("Bob")

	r := f.op.Heal(context.Background(), f.id, "Bob")
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.Contains(t, r.Status, "elevated access")
	assert.Empty(t, f.console.Commands("Main"))
}

func TestHealUnknownPlayer(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.setOnline("Bob")

	r := f.op.Heal(context.Background(), f.id, "Bob")
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.Equal(t, "**Bob** is not a player of the **Main** server.", r.Status)
	assert.Empty(t, f.console.Commands("Main"))
}

func TestHealOfflineServerSendsNoEffectCommand(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.game.AddPlayer("Bob", "", "")
	// nothing answers the players command

	done := f.run(func(ctx context.Context) Report { return f.op.Heal(ctx, f.id, "Bob") })
	f.clock.WaitForTimers(1)
	f.clock.Advance(5 * time.Second)

	r := wait(t, done)
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.Contains(t, r.Status, "Heal failed")
	assert.Equal(t, []string{"players"}, f.console.Commands("Main"))
	assert.True(t, f.console.AllClosed())
}

func TestHealPresenceRejectedSendsNoEffectCommand(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.game.AddPlayer("Bob", "", "")
	f.setOnline("Alice")

	r := f.op.Heal(context.Background(), f.id, "Bob")
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.Equal(t, []string{"players"}, f.console.Commands("Main"))
}

func TestTeleportB42(t *testing.T) {
	f := newFixture(t, "25.0.1")
	f.game.AddPlayer("Bob", "", "2")
	f.game.AddPlayer("Alice", "", "2")
	f.setOnline("Alice", "Bob")

	r := f.op.Teleport(context.Background(), f.id, "Bob", "Alice")
	assert.True(t, r.OK(), "%v", r.Err)
	assert.Equal(t, "Successfully teleported **Bob** to **Alice** on the **Main** server!", r.Status)
	assert.Equal(t, []string{"players", `teleportplayer "Bob" "Alice"`}, f.console.Commands("Main"))
}

func TestTeleportRequiresBothOnline(t *testing.T) {
	f := newFixture(t, "25.0.1")
	f.game.AddPlayer("Bob", "", "2")
	f.game.AddPlayer("Alice", "", "2")
	f.setOnline("Bob")

	r := f.op.Teleport(context.Background(), f.id, "Bob", "Alice")
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.Contains(t, r.Status, "Teleport failed")
	assert.Equal(t, []string{"players"}, f.console.Commands("Main"))
}

func TestTeleportRequiresWhitelistedTarget(t *testing.T) {
	f := newFixture(t, "25.0.1")
	f.game.AddPlayer("Bob", "", "2")
	f.setOnline("Alice", "Bob")

	r := f.op.Teleport(context.Background(), f.id, "Bob", "Alice")
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.Equal(t, "**Alice** is not a player of the **Main** server.", r.Status)
	assert.Empty(t, f.console.Commands("Main"))
}

func TestUnknownGameVersion(t *testing.T) {
	f := newFixture(t, "")
	f.setOnline("Bob")

	r := f.op.Online(context.Background(), f.id, "Bob")
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.ErrorIs(t, r.Err, strategy.ErrUnknownVersion)
	assert.Empty(t, f.console.Commands("Main"))
}

const perkLog = `[02-03-26 09:15:30.500] [1][Bob][0,0,0][Login][Hours Survived: 31].
[02-03-26 09:15:30.640] [1][Bob][0,0,0][Cooking=3, Fitness=6, Axe=2][Hours Survived: 31].
[02-03-26 13:00:00.000] [1][Bob][0,0,0][Died][Hours Survived: 35].
[02-03-26 13:05:10.100] [1][Bob][0,0,0][Created Player 2][Hours Survived: 0].
[02-03-26 13:05:10.180] [1][Bob][0,0,0][Cooking=0, Fitness=5, Axe=2][Hours Survived: 0].
`

func writePerkLog(t *testing.T, id server.Identity, content string) {
	t.Helper()
	dir := id.PerkLogDirPath()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026-03-02_PerkLog.txt"), []byte(content), 0o644))
}

func TestRestoreSkills(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.setOnline("Bob")
	writePerkLog(t, f.id, perkLog)

	done := f.run(func(ctx context.Context) Report { return f.op.RestoreSkills(ctx, f.id, "Bob") })
	f.clock.WaitForTimers(2) // deadline and spacing after the first grant
	f.clock.Advance(100 * time.Millisecond)

	r := wait(t, done)
	assert.True(t, r.OK(), "%v", r.Err)
	assert.Equal(t, []string{
		"players",
		`addxp "Bob" Cooking=525`,
		`addxp "Bob" Fitness=30000`,
	}, f.console.Commands("Main"))
}

func TestRestoreSkillsNothingLost(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.setOnline("Bob")
	writePerkLog(t, f.id, strings.ReplaceAll(perkLog, "Cooking=0, Fitness=5", "Cooking=3, Fitness=6"))

	r := f.op.RestoreSkills(context.Background(), f.id, "Bob")
	assert.True(t, r.OK(), "%v", r.Err)
	assert.Contains(t, r.Status, "no skill levels to restore")
	assert.Equal(t, []string{"players"}, f.console.Commands("Main"))
}

func TestRestoreSkillsWithoutPerkLog(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.setOnline("Bob")

	r := f.op.RestoreSkills(context.Background(), f.id, "Bob")
	assert.Equal(t, verify.Rejected, r.Outcome)
	assert.Contains(t, r.Status, "Level restore failed")
	assert.Equal(t, []string{"players"}, f.console.Commands("Main"))
}
