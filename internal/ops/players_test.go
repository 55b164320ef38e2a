package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/zomboctl/internal/verify"
)

func TestPlayersListsRoster(t *testing.T) {
	f := newFixture(t, "25.0.1")
	f.setOnline("Alice", "Bob")

	r := f.op.Players(context.Background(), f.id)
	assert.True(t, r.OK(), "%v", r.Err)
	assert.Equal(t, []string{"Alice", "Bob"}, r.Players)
	assert.Equal(t, "2 player(s) online on the **Main** server:\n- Alice\n- Bob", r.Status)
	assert.Equal(t, []string{"players"}, f.console.Commands("Main"))
	assert.True(t, f.console.AllClosed())
}

func TestPlayersEmptyServer(t *testing.T) {
	f := newFixture(t, "17.0.8")
	f.setOnline([]string{}...)

	r := f.op.Players(context.Background(), f.id)
	assert.True(t, r.OK(), "%v", r.Err)
	assert.Empty(t, r.Players)
	assert.Equal(t, "Nobody is online on the **Main** server.", r.Status)
}

func TestPlayersNoRoster(t *testing.T) {
	f := newFixture(t, "17.0.8")

	done := f.run(func(ctx context.Context) Report { return f.op.Players(ctx, f.id) })
	f.clock.WaitForTimers(1)
	f.clock.Advance(5 * time.Second)

	r := wait(t, done)
	assert.Equal(t, verify.TimedOut, r.Outcome)
	assert.Equal(t, "Could not get the player list of the **Main** server.", r.Status)
	assert.True(t, f.console.AllClosed())
}
