package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zomboctl/internal/gamedb"
	"github.com/roach88/zomboctl/internal/store"
)

var renderTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func assertGoldenMessage(t *testing.T, name string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func TestRenderUnanswered(t *testing.T) {
	ticket := gamedb.Ticket{ID: 7, Author: "bob", Message: "lost my car"}
	msg := Render("Main", ticket, nil, renderTime, "WCN Ticket System")
	assertGoldenMessage(t, "ticket_unanswered", msg)
}

func TestRenderAnswered(t *testing.T) {
	ticket := gamedb.Ticket{ID: 7, Author: "bob", Message: "lost my car"}
	answer := &gamedb.Reply{Author: "admin", Message: "found it by the gas station"}
	msg := Render("Main", ticket, answer, renderTime, "WCN Ticket System")
	assertGoldenMessage(t, "ticket_answered", msg)
}

func TestRenderDefaultFooter(t *testing.T) {
	msg := Render("Side", gamedb.Ticket{ID: 1}, nil, renderTime, "")
	require.Len(t, msg.Embeds, 1)
	assert.Equal(t, DefaultFooter, msg.Embeds[0].Footer.Text)
	assert.Equal(t, "🎫 [Side] Support Ticket #1", msg.Embeds[0].Title)
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, store.StateUnanswered, StateOf(nil))
	assert.Equal(t, store.StateAnswered, StateOf(&gamedb.Reply{}))
}
