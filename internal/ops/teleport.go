package ops

import (
	"context"
	"fmt"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/verify"
)

// Teleport moves player to target. Both must be whitelisted and online.
func (o *Operator) Teleport(ctx context.Context, id server.Identity, player, target string) Report {
	log := o.logger.With("server", id.Name, "player", player, "target", target)
	failed := fmt.Sprintf("Teleport failed. Make sure both **%s** and **%s** are online on the **%s** server.",
		player, target, id.Name)

	strat, report, ok := o.strategy(id)
	if !ok {
		return report
	}

	for _, name := range []string{player, target} {
		_, found, err := o.lookup(ctx, id, name)
		if err != nil {
			log.Error("whitelist lookup failed", "error", err)
			return Report{Outcome: verify.Rejected, Status: failed, Err: err}
		}
		if !found {
			log.Warn("player not in whitelist", "name", name)
			return Report{
				Outcome: verify.Rejected,
				Status:  fmt.Sprintf("**%s** is not a player of the **%s** server.", name, id.Name),
				Err:     fmt.Errorf("%s not in whitelist", name),
			}
		}
	}

	if report, ok := o.presence(ctx, id, strat, player, target); !ok {
		report.Status = failed
		return report
	}

	command, err := strat.TeleportCommand(player, target)
	if err != nil {
		return Report{Outcome: verify.Rejected, Status: failed, Err: err}
	}
	phrase, err := strat.TeleportedPhrase(player, target)
	if err != nil {
		return Report{Outcome: verify.Rejected, Status: failed, Err: err}
	}

	outcome, err := o.verifier.Verify(ctx, id, verify.Task{
		Name:       "teleport",
		Commands:   []string{command},
		Deadline:   strat.Timing.Teleport,
		Classifier: verify.Phrase(phrase...),
	})
	if outcome != verify.Confirmed {
		log.Error("teleport not confirmed", "outcome", outcome, "error", err)
		return Report{Outcome: outcome, Status: failed, Err: err}
	}
	log.Info("player teleported")
	return Report{
		Outcome: verify.Confirmed,
		Status:  fmt.Sprintf("Successfully teleported **%s** to **%s** on the **%s** server!", player, target, id.Name),
	}
}
