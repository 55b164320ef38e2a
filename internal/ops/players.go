package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/verify"
)

// Players lists everyone connected to the server, in roster order.
func (o *Operator) Players(ctx context.Context, id server.Identity) Report {
	strat, report, ok := o.strategy(id)
	if !ok {
		return report
	}

	roster := verify.Roster(strat.RosterHeader())
	outcome, err := o.verifier.Verify(ctx, id, verify.Task{
		Name:       "roster",
		Commands:   []string{strat.PlayersCommand()},
		Deadline:   strat.Timing.Presence,
		Classifier: roster,
	})
	if outcome != verify.Confirmed {
		if err == nil {
			err = errors.New("roster not printed")
		}
		o.logger.Warn("player list failed", "server", id.Name, "outcome", outcome, "error", err)
		return Report{
			Outcome: outcome,
			Status:  fmt.Sprintf("Could not get the player list of the **%s** server.", id.Name),
			Err:     err,
		}
	}

	players := roster.Players()
	if len(players) == 0 {
		return Report{
			Outcome: verify.Confirmed,
			Status:  fmt.Sprintf("Nobody is online on the **%s** server.", id.Name),
			Players: players,
		}
	}
	return Report{
		Outcome: verify.Confirmed,
		Status: fmt.Sprintf("%d player(s) online on the **%s** server:\n- %s",
			len(players), id.Name, strings.Join(players, "\n- ")),
		Players: players,
	}
}
