// Package ops implements the player operations offered to server
// admins: presence checks, heal, teleport and skill restore.
//
// Every operation is a chain of verification tasks run one after the
// other. The presence check always comes first and the effect command is
// only sent once presence is confirmed. Results are reported as a Report
// whose Status is safe to show to the requester; the underlying error is
// only logged.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/zomboctl/internal/gamedb"
	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/strategy"
	"github.com/roach88/zomboctl/internal/verify"
)

// Report is the result of an operation.
type Report struct {
	Outcome verify.Outcome

	// Status is a plain-language summary for the requester.
	Status string

	// Err is the cause of a failure, for logs only.
	Err error

	// Players is the roster returned by Players.
	Players []string
}

// OK reports whether the operation's effect was confirmed.
func (r Report) OK() bool { return r.Outcome == verify.Confirmed }

// Verifier runs verification tasks.
type Verifier interface {
	Verify(ctx context.Context, id server.Identity, task verify.Task) (verify.Outcome, error)
}

// Detector resolves the strategy of a server's game build.
type Detector interface {
	Detect(releaseFile string) (*strategy.Strategy, error)
}

// Whitelist looks up player rows in the game database.
type Whitelist interface {
	Player(ctx context.Context, id server.Identity, username string) (map[string]string, error)
}

// Config wires an Operator. Verifier, Strategies and Whitelist are
// required.
type Config struct {
	Verifier   Verifier
	Strategies Detector
	Whitelist  Whitelist

	// Matcher compares roster rows with player names. Default exact.
	Matcher server.NameMatcher

	Logger *slog.Logger
}

// Operator runs player operations. It keeps no per-call state.
type Operator struct {
	verifier   Verifier
	strategies Detector
	whitelist  Whitelist
	matcher    server.NameMatcher
	logger     *slog.Logger
}

// New returns an Operator.
func New(cfg Config) *Operator {
	if cfg.Matcher == nil {
		cfg.Matcher, _ = server.Matcher(server.MatchExact)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Operator{
		verifier:   cfg.Verifier,
		strategies: cfg.Strategies,
		whitelist:  cfg.Whitelist,
		matcher:    cfg.Matcher,
		logger:     cfg.Logger,
	}
}

// Online confirms every player is connected to the server.
func (o *Operator) Online(ctx context.Context, id server.Identity, players ...string) Report {
	strat, report, ok := o.strategy(id)
	if !ok {
		return report
	}
	names := quoteAll(players)
	if report, ok := o.presence(ctx, id, strat, players...); !ok {
		report.Status = fmt.Sprintf("%s not online on the **%s** server.", names, id.Name)
		return report
	}
	return Report{
		Outcome: verify.Confirmed,
		Status:  fmt.Sprintf("%s online on the **%s** server.", names, id.Name),
	}
}

// presence runs the roster check. Anything but a confirmation is
// reported as Rejected: a server that never prints a roster is treated
// the same as one that does not list the player.
func (o *Operator) presence(ctx context.Context, id server.Identity, strat *strategy.Strategy, players ...string) (Report, bool) {
	classifier := verify.Presence(strat.RosterHeader(), o.matcher, players...)
	outcome, err := o.verifier.Verify(ctx, id, verify.Task{
		Name:       "presence",
		Commands:   []string{strat.PlayersCommand()},
		Deadline:   strat.Timing.Presence,
		Classifier: classifier,
	})
	if outcome == verify.Confirmed {
		return Report{Outcome: verify.Confirmed}, true
	}

	log := o.logger.With("server", id.Name, "players", players)
	switch {
	case err != nil:
		log.Warn("presence check failed", "error", err)
	case outcome == verify.TimedOut:
		log.Warn("presence check timed out", "roster_seen", classifier.HeaderSeen())
		err = errors.New("presence check timed out")
	default:
		log.Info("players not online", "missing", classifier.Missing())
		err = fmt.Errorf("not online: %s", strings.Join(classifier.Missing(), ", "))
	}
	return Report{Outcome: verify.Rejected, Err: err}, false
}

func (o *Operator) strategy(id server.Identity) (*strategy.Strategy, Report, bool) {
	strat, err := o.strategies.Detect(id.ReleaseFilePath())
	if err != nil {
		o.logger.Error("cannot detect game version", "server", id.Name, "error", err)
		return nil, Report{
			Outcome: verify.Rejected,
			Status:  fmt.Sprintf("Could not determine the game version of the **%s** server.", id.Name),
			Err:     err,
		}, false
	}
	return strat, Report{}, true
}

// lookup returns the whitelist row of player. found is false for
// unknown players.
func (o *Operator) lookup(ctx context.Context, id server.Identity, player string) (row map[string]string, found bool, err error) {
	row, err = o.whitelist.Player(ctx, id, player)
	if errors.Is(err, gamedb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func quoteAll(players []string) string {
	quoted := make([]string, len(players))
	for i, p := range players {
		quoted[i] = "**" + p + "**"
	}
	return strings.Join(quoted, " and ")
}
