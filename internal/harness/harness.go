package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/zomboctl/internal/gamedb"
	"github.com/roach88/zomboctl/internal/ops"
	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/strategy"
	"github.com/roach88/zomboctl/internal/testutil"
	"github.com/roach88/zomboctl/internal/verify"
)

// Harness replays scenarios against a strategy table.
type Harness struct {
	table   *strategy.Table
	matcher server.NameMatcher
	logger  *slog.Logger
}

// New returns a Harness. A nil matcher selects exact matching; a nil
// logger discards.
func New(table *strategy.Table, matcher server.NameMatcher, logger *slog.Logger) *Harness {
	if matcher == nil {
		matcher, _ = server.Matcher(server.MatchExact)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Harness{table: table, matcher: matcher, logger: logger}
}

// Run executes a scenario and returns the result.
//
// The console is a testutil.FakeConsole answering from the transcript,
// so the real verifier, classifiers and operator run unchanged. Every
// deadline is replaced by the scenario's and command spacing is dropped;
// scenarios check commands and phrasing, not timing.
func (h *Harness) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	strat, err := h.table.Lookup(sc.Version)
	if err != nil {
		return nil, err
	}
	replay := *strat
	d := sc.deadline()
	replay.Timing = strategy.Timing{Presence: d, Heal: d, Teleport: d, AddXP: d}

	home, err := os.MkdirTemp("", "zomboctl-scenario-")
	if err != nil {
		return nil, fmt.Errorf("scenario home: %w", err)
	}
	defer os.RemoveAll(home)

	id := server.Identity{Name: sc.serverName(), SystemUser: "scenario", Home: home}
	if sc.PerkLog != "" {
		dir := id.PerkLogDirPath()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("scenario perk log: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "scenario_PerkLog.txt"), []byte(sc.PerkLog), 0o644); err != nil {
			return nil, fmt.Errorf("scenario perk log: %w", err)
		}
	}

	result := NewResult()
	tr := &transcript{entries: sc.Transcript, used: make([]bool, len(sc.Transcript)), result: result}
	console := &testutil.FakeConsole{Respond: tr.respond}

	op := ops.New(ops.Config{
		Verifier: verify.New(verify.Config{
			Source:  console,
			Channel: console,
			IDs:     testutil.NewFixedIDs(sc.Name),
			Logger:  h.logger,
		}),
		Strategies: fixedStrategy{&replay},
		Whitelist:  whitelist(sc.Whitelist),
		Matcher:    h.matcher,
		Logger:     h.logger,
	})

	var report ops.Report
	switch sc.Operation {
	case OpOnline:
		report = op.Online(ctx, id, sc.Players...)
	case OpHeal:
		report = op.Heal(ctx, id, sc.Players[0])
	case OpTeleport:
		report = op.Teleport(ctx, id, sc.Players[0], sc.Players[1])
	case OpRestoreSkills:
		report = op.RestoreSkills(ctx, id, sc.Players[0])
	default:
		return nil, fmt.Errorf("unknown operation %q", sc.Operation)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	result.Outcome = report.Outcome.String()
	result.Status = report.Status

	if result.Outcome != sc.Expect.Outcome {
		result.AddError(fmt.Sprintf("outcome: expected %s, got %s (%v)", sc.Expect.Outcome, result.Outcome, report.Err))
	}
	if sc.Expect.Status != "" && !strings.Contains(result.Status, sc.Expect.Status) {
		result.AddError(fmt.Sprintf("status: expected to contain %q, got %q", sc.Expect.Status, result.Status))
	}
	for _, msg := range EvaluateAssertions(result, sc.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// transcript answers console commands from scenario entries and records
// the exchange.
type transcript struct {
	mu      sync.Mutex
	entries []Response
	used    []bool
	result  *Result
}

func (t *transcript) respond(_, command string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.result.add(EventCommand, command)
	for i, e := range t.entries {
		if t.used[i] || !strings.HasPrefix(command, e.On) {
			continue
		}
		t.used[i] = true
		for _, line := range e.Lines {
			t.result.add(EventLine, line)
		}
		return e.Lines
	}
	return nil
}

type fixedStrategy struct{ s *strategy.Strategy }

func (f fixedStrategy) Detect(string) (*strategy.Strategy, error) { return f.s, nil }

type whitelist []map[string]string

func (w whitelist) Player(_ context.Context, _ server.Identity, username string) (map[string]string, error) {
	for _, row := range w {
		if row["username"] == username {
			return row, nil
		}
	}
	return nil, fmt.Errorf("whitelist %q: %w", username, gamedb.ErrNotFound)
}
