package ops

import (
	"context"
	"fmt"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/verify"
)

// Heal fully heals an ordinary player by toggling god mode on and off.
// Admins and other privileged players are refused.
func (o *Operator) Heal(ctx context.Context, id server.Identity, player string) Report {
	log := o.logger.With("server", id.Name, "player", player)
	failed := fmt.Sprintf("Heal failed, **%s** must be on the **%s** server and must not be admin, gm, etc.", player, id.Name)

	strat, report, ok := o.strategy(id)
	if !ok {
		return report
	}

	row, found, err := o.lookup(ctx, id, player)
	if err != nil {
		log.Error("whitelist lookup failed", "error", err)
		return Report{Outcome: verify.Rejected, Status: failed, Err: err}
	}
	if !found {
		log.Warn("player not in whitelist")
		return Report{
			Outcome: verify.Rejected,
			Status:  fmt.Sprintf("**%s** is not a player of the **%s** server.", player, id.Name),
			Err:     fmt.Errorf("%s not in whitelist", player),
		}
	}
	normal, err := strat.IsNormalPlayer(row)
	if err != nil {
		log.Error("cannot read access level", "error", err)
		return Report{Outcome: verify.Rejected, Status: failed, Err: err}
	}
	if !normal {
		log.Warn("refusing to heal privileged player", "access", row[strat.Access.Column])
		return Report{
			Outcome: verify.Rejected,
			Status:  fmt.Sprintf("**%s** has elevated access on the **%s** server and cannot be healed.", player, id.Name),
			Err:     fmt.Errorf("%s has access %q", player, row[strat.Access.Column]),
		}
	}

	if report, ok := o.presence(ctx, id, strat, player); !ok {
		report.Status = failed
		return report
	}

	commands, err := strat.HealCommands(player)
	if err != nil {
		return Report{Outcome: verify.Rejected, Status: failed, Err: err}
	}
	on, off, err := strat.HealPhrases(player)
	if err != nil {
		return Report{Outcome: verify.Rejected, Status: failed, Err: err}
	}
	toggle := verify.Toggle(on, off)

	outcome, err := o.verifier.Verify(ctx, id, verify.Task{
		Name:       "heal",
		Commands:   commands,
		Spacing:    strat.Timing.HealSpacing,
		Deadline:   strat.Timing.Heal,
		Classifier: toggle,
	})
	if outcome != verify.Confirmed {
		log.Error("heal not confirmed", "outcome", outcome, "error", err)
		return Report{Outcome: outcome, Status: failed, Err: err}
	}
	if !toggle.OnSeen() {
		log.Warn("god mode removed without being granted, maybe admin")
	}
	log.Info("player healed")
	return Report{
		Outcome: verify.Confirmed,
		Status:  fmt.Sprintf("I have healed **%s** on the **%s** server!", player, id.Name),
	}
}
