package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/zomboctl/internal/ops"
	"github.com/roach88/zomboctl/internal/server"
)

// OperationResult is the JSON payload of a player operation.
type OperationResult struct {
	Server    string `json:"server"`
	Operation string `json:"operation"`
	Outcome   string `json:"outcome"`
	Status    string `json:"status"`

	// Players is set by the players command.
	Players []string `json:"players,omitempty"`
}

func (r OperationResult) String() string { return r.Status }

// playerOp runs one operation against a configured server.
type playerOp func(ctx context.Context, op *ops.Operator, id server.Identity, args []string) ops.Report

// NewOnlineCommand creates the online command.
func NewOnlineCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlayerCommand(rootOpts, "online", &cobra.Command{
		Use:   "online <server> <player>...",
		Short: "Check that players are connected",
		Long: `Ask the server for its player roster and confirm every named
player is on it.

Example:
  zomboctl online Main Bob Alice`,
		Args: cobra.MinimumNArgs(2),
	}, func(ctx context.Context, op *ops.Operator, id server.Identity, args []string) ops.Report {
		return op.Online(ctx, id, args...)
	})
}

// NewPlayersCommand creates the players command.
func NewPlayersCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlayerCommand(rootOpts, "players", &cobra.Command{
		Use:   "players <server>",
		Short: "List the connected players",
		Long: `Ask the server for its player roster and print everyone on it.

Example:
  zomboctl players Main
  zomboctl players Main --format json`,
		Args: cobra.ExactArgs(1),
	}, func(ctx context.Context, op *ops.Operator, id server.Identity, _ []string) ops.Report {
		return op.Players(ctx, id)
	})
}

// NewHealCommand creates the heal command.
func NewHealCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlayerCommand(rootOpts, "heal", &cobra.Command{
		Use:   "heal <server> <player>",
		Short: "Heal a player by toggling god mode",
		Long: `Heal an online, non-admin player by turning god mode on and off
again, confirming both transitions in the console log.

Example:
  zomboctl heal Main Bob`,
		Args: cobra.ExactArgs(2),
	}, func(ctx context.Context, op *ops.Operator, id server.Identity, args []string) ops.Report {
		return op.Heal(ctx, id, args[0])
	})
}

// NewTeleportCommand creates the teleport command.
func NewTeleportCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlayerCommand(rootOpts, "teleport", &cobra.Command{
		Use:   "teleport <server> <player> <target>",
		Short: "Move a player to another player",
		Long: `Teleport player to target. Both must be whitelisted and online.

Example:
  zomboctl teleport Main Bob Alice`,
		Args: cobra.ExactArgs(3),
	}, func(ctx context.Context, op *ops.Operator, id server.Identity, args []string) ops.Report {
		return op.Teleport(ctx, id, args[0], args[1])
	})
}

// NewRestoreSkillsCommand creates the restore-skills command.
func NewRestoreSkillsCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlayerCommand(rootOpts, "restore-skills", &cobra.Command{
		Use:   "restore-skills <server> <player>",
		Short: "Give back the skill levels lost at the last death",
		Long: `Read the player's PerkLog, find the skill levels held before their
most recent death and grant the experience needed to get them back.

Example:
  zomboctl restore-skills Main Bob`,
		Args: cobra.ExactArgs(2),
	}, func(ctx context.Context, op *ops.Operator, id server.Identity, args []string) ops.Report {
		return op.RestoreSkills(ctx, id, args[0])
	})
}

func newPlayerCommand(rootOpts *RootOptions, name string, cmd *cobra.Command, run playerOp) *cobra.Command {
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(rootOpts, cmd)
		if err != nil {
			return err
		}
		id, err := a.server(args[0])
		if err != nil {
			return err
		}
		op, err := a.operator()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd)
		defer stop()

		report := run(ctx, op, id, args[1:])
		if report.Err != nil {
			a.logger.Warn("operation failed", "server", id.Name, "operation", name, "outcome", report.Outcome, "error", report.Err)
		}
		return outputReport(a.out, OperationResult{
			Server:    id.Name,
			Operation: name,
			Outcome:   report.Outcome.String(),
			Status:    report.Status,
			Players:   report.Players,
		}, report.OK())
	}
	return cmd
}

func outputReport(f *OutputFormatter, res OperationResult, ok bool) error {
	if ok {
		return f.Success(res)
	}
	if err := f.Error("E_"+strings.ToUpper(res.Outcome), res.Status, res); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s on %s: %s", res.Operation, res.Server, res.Outcome))
}
