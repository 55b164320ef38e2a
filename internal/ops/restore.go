package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/skills"
	"github.com/roach88/zomboctl/internal/verify"
)

// RestoreSkills grants the xp a player lost at their most significant
// death, as recorded in the server's PerkLog. The player must be online.
func (o *Operator) RestoreSkills(ctx context.Context, id server.Identity, player string) Report {
	log := o.logger.With("server", id.Name, "player", player)
	failed := fmt.Sprintf("Level restore failed for **%s** on the **%s** server. "+
		"Player must be online and have a death record in the logs.", player, id.Name)

	strat, report, ok := o.strategy(id)
	if !ok {
		return report
	}

	if report, ok := o.presence(ctx, id, strat, player); !ok {
		report.Status = failed
		return report
	}

	analysis, err := skills.AnalyzeDir(id.PerkLogDirPath(), player)
	if err != nil {
		log.Warn("cannot analyse PerkLog", "error", err)
		return Report{Outcome: verify.Rejected, Status: failed, Err: err}
	}
	if len(analysis.Current) == 0 {
		log.Warn("no skill levels logged since death", "death_hours", analysis.DeathHours)
		return Report{Outcome: verify.Rejected, Status: failed, Err: errors.New("no skill levels since death")}
	}

	grants := analysis.Deficits()
	if len(grants) == 0 {
		log.Info("no xp to restore", "death_hours", analysis.DeathHours)
		return Report{
			Outcome: verify.Confirmed,
			Status:  fmt.Sprintf("**%s** has no skill levels to restore on the **%s** server.", player, id.Name),
		}
	}

	commands := make([]string, 0, len(grants))
	for _, g := range grants {
		cmd, err := strat.AddXPCommand(player, g.Skill, g.XP)
		if err != nil {
			return Report{Outcome: verify.Rejected, Status: failed, Err: err}
		}
		commands = append(commands, cmd)
	}
	phrase, err := strat.XPAddedPhrase(player)
	if err != nil {
		return Report{Outcome: verify.Rejected, Status: failed, Err: err}
	}
	counter := verify.Count(phrase, len(commands))

	log.Info("restoring skills", "death_hours", analysis.DeathHours, "grants", len(grants))
	outcome, err := o.verifier.Verify(ctx, id, verify.Task{
		Name:       "restore-skills",
		Commands:   commands,
		Spacing:    strat.Timing.AddXPSpacing,
		Deadline:   strat.Timing.AddXP,
		Classifier: counter,
	})
	if outcome != verify.Confirmed {
		log.Error("xp grants not confirmed", "outcome", outcome, "confirmed", counter.Seen(), "sent", len(commands), "error", err)
		return Report{Outcome: outcome, Status: failed, Err: err}
	}
	return Report{
		Outcome: verify.Confirmed,
		Status:  fmt.Sprintf("Successfully restored skill levels for **%s** on the **%s** server!", player, id.Name),
	}
}
