package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zomboctl/internal/notify"
	"github.com/roach88/zomboctl/internal/reconcile"
	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/store"
	"github.com/roach88/zomboctl/internal/testutil"
)

// fakeWebhook records posted messages and answers with sequential ids.
type fakeWebhook struct {
	mu    sync.Mutex
	posts []notify.Message
}

func (f *fakeWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Query().Get("wait") != "true" {
		http.Error(w, "unexpected request", http.StatusBadRequest)
		return
	}
	var msg notify.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.posts = append(f.posts, msg)
	id := 900 + len(f.posts)
	f.mu.Unlock()
	fmt.Fprintf(w, `{"id":"%d"}`, id)
}

func (f *fakeWebhook) Posts() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.posts...)
}

func ticketFixture(t *testing.T) (cfg string, game *testutil.GameDB, hook *fakeWebhook) {
	t.Helper()
	t.Setenv("ZOMBOCTL_TICKET_WEBHOOK", "")
	t.Setenv("ZOMBOCTL_TICKET_THREAD", "")

	hook = &fakeWebhook{}
	srv := httptest.NewServer(hook)
	t.Cleanup(srv.Close)

	cfg, home := writeConfig(t, "notify:\n  ticket_webhook: "+srv.URL+"\n  footer: Test Tickets\n")
	game = testutil.NewGameDB(t, server.Identity{Name: "Main", SystemUser: "pzmain", Home: home})
	return cfg, game, hook
}

func TestTicketsPoll(t *testing.T) {
	cfg, game, hook := ticketFixture(t)
	game.AddTicket(1, "Bob", "my car is gone")

	out, _, err := execute(t, "--config", cfg, "tickets", "poll")
	require.NoError(t, err)
	assert.Equal(t, "✓ Main: posted 1, edited 0, untracked 0 (watermark 1)\n", out)

	posts := hook.Posts()
	require.Len(t, posts, 1)
	require.Len(t, posts[0].Embeds, 1)
	assert.Equal(t, "🎫 [Main] Support Ticket #1", posts[0].Embeds[0].Title)
	assert.Equal(t, "Test Tickets", posts[0].Embeds[0].Footer.Text)

	// A second process resumes from the state database.
	out, _, err = execute(t, "--config", cfg, "tickets", "poll", "Main")
	require.NoError(t, err)
	assert.Equal(t, "✓ Main: posted 0, edited 0, untracked 0 (watermark 1)\n", out)
	assert.Len(t, hook.Posts(), 1)
}

func TestTicketsResetReposts(t *testing.T) {
	cfg, game, hook := ticketFixture(t)
	game.AddTicket(1, "Bob", "my car is gone")

	_, _, err := execute(t, "--config", cfg, "tickets", "poll")
	require.NoError(t, err)

	out, _, err := execute(t, "--config", cfg, "tickets", "reset", "main")
	require.NoError(t, err)
	assert.Equal(t, "Ticket tracking of Main reset.\n", out)

	_, _, err = execute(t, "--config", cfg, "tickets", "poll")
	require.NoError(t, err)
	assert.Len(t, hook.Posts(), 2)
}

func TestTicketsPollJSON(t *testing.T) {
	cfg, game, _ := ticketFixture(t)
	game.AddTicket(1, "Bob", "my car is gone")
	game.AddAnswer(2, 1, "admin", "found it")

	out, _, err := execute(t, "--config", cfg, "--format", "json", "tickets", "poll")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []PollResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	require.NotNil(t, resp.Data[0].Result)
	assert.Equal(t, 1, resp.Data[0].Result.Posted)
	assert.Equal(t, 1, resp.Data[0].Result.Answers)
	assert.Equal(t, int64(2), resp.Data[0].Result.Watermark)
}

func TestTicketsPollMissingGameDatabase(t *testing.T) {
	t.Setenv("ZOMBOCTL_TICKET_WEBHOOK", "")
	srv := httptest.NewServer(&fakeWebhook{})
	t.Cleanup(srv.Close)
	cfg, _ := writeConfig(t, "notify:\n  ticket_webhook: "+srv.URL+"\n")

	out, _, err := execute(t, "--config", cfg, "tickets", "poll")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Main: poll Main:")
}

func TestTicketsPollNeedsWebhook(t *testing.T) {
	t.Setenv("ZOMBOCTL_TICKET_WEBHOOK", "")
	cfg, _ := writeConfig(t, "")

	_, _, err := execute(t, "--config", cfg, "tickets", "poll")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no ticket webhook")
}

func TestStatePathIsNextToConfig(t *testing.T) {
	cfg, _, _ := ticketFixture(t)

	_, _, err := execute(t, "--config", cfg, "tickets", "poll")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg), "state.db"))
}

// holdPollLock takes the poll lock of Main the way a running serve does.
func holdPollLock(t *testing.T, cfg string) func() {
	t.Helper()
	st, err := store.Open(filepath.Join(filepath.Dir(cfg), "state.db"))
	require.NoError(t, err)
	lock, err := st.Lock(reconcile.PollLock, "Main")
	require.NoError(t, err)
	return func() {
		lock.Unlock()
		st.Close()
	}
}

func TestTicketsPollSkipsServerPolledElsewhere(t *testing.T) {
	cfg, game, hook := ticketFixture(t)
	game.AddTicket(1, "Bob", "my car is gone")

	release := holdPollLock(t, cfg)
	out, _, err := execute(t, "--config", cfg, "tickets", "poll")
	require.NoError(t, err)
	assert.Equal(t, "- Main: skipped, a poll is already in progress\n", out)
	assert.Empty(t, hook.Posts())

	release()
	_, _, err = execute(t, "--config", cfg, "tickets", "poll")
	require.NoError(t, err)
	assert.Len(t, hook.Posts(), 1)
}

func TestTicketsResetRefusedDuringPoll(t *testing.T) {
	cfg, game, _ := ticketFixture(t)
	game.AddTicket(1, "Bob", "my car is gone")
	_, _, err := execute(t, "--config", cfg, "tickets", "poll")
	require.NoError(t, err)

	release := holdPollLock(t, cfg)
	defer release()
	out, _, err := execute(t, "--config", cfg, "tickets", "reset", "Main")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E_POLL_IN_PROGRESS")
}

func TestTicketsShow(t *testing.T) {
	cfg, game, _ := ticketFixture(t)
	game.AddTicket(1, "Bob", "my car is gone")
	_, _, err := execute(t, "--config", cfg, "tickets", "poll")
	require.NoError(t, err)

	out, _, err := execute(t, "--config", cfg, "--format", "json", "tickets", "show", "Main", "1")
	require.NoError(t, err)
	var resp struct {
		Data TrackingResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Main", resp.Data.Server)
	assert.Equal(t, int64(1), resp.Data.TicketID)
	assert.Equal(t, "901", resp.Data.MessageID)
	assert.Equal(t, "unanswered", resp.Data.State)

	out, _, err = execute(t, "--config", cfg, "tickets", "show", "Main", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Main ticket #1: message 901, unanswered, posted ")
}

func TestTicketsShowUntracked(t *testing.T) {
	cfg, _ := writeConfig(t, "")

	out, _, err := execute(t, "--config", cfg, "tickets", "show", "Main", "7")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Ticket #7 of Main is not mirrored.")

	_, _, err = execute(t, "--config", cfg, "tickets", "show", "Main", "seven")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
