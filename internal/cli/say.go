package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/zomboctl/internal/command"
	"github.com/roach88/zomboctl/internal/restart"
	"github.com/roach88/zomboctl/internal/server"
)

// NewSayCommand creates the say command.
func NewSayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "say <server> <text>...",
		Short: "Broadcast a message to every player",
		Long: `Send a server message that every connected player sees. The words
after the server name are joined with spaces. Quotes are dropped since
the console cannot escape them.

Example:
  zomboctl say Main "Restart after the raid, hang tight"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			id, err := a.server(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			text := strings.Join(args[1:], " ")
			res, ok := broadcast(ctx, restart.NewSystemctl(a.cfg.UseSudo(), a.logger), a.channel(), id, text, a.logger)
			return outputReport(a.out, res, ok)
		},
	}
}

// runChecker reports whether a server's game process is up.
type runChecker interface {
	IsRunning(ctx context.Context, id server.Identity) (bool, error)
}

// broadcast sends text as a server message once the game is known to be
// running.
func broadcast(ctx context.Context, check runChecker, ch command.Channel, id server.Identity, text string, logger *slog.Logger) (OperationResult, bool) {
	res := OperationResult{Server: id.Name, Operation: "say"}

	running, err := check.IsRunning(ctx, id)
	if err != nil {
		logger.Warn("cannot check game process", "server", id.Name, "error", err)
	}
	if !running {
		res.Outcome = "rejected"
		res.Status = fmt.Sprintf("%s is **NOT** running!", id.Name)
		return res, false
	}

	if err := command.Message(ctx, ch, id, text); err != nil {
		logger.Error("server message not delivered", "server", id.Name, "error", err)
		res.Outcome = "rejected"
		res.Status = fmt.Sprintf("Could not send the message to the **%s** server.", id.Name)
		return res, false
	}
	logger.Info("server message sent", "server", id.Name, "text", text)
	res.Outcome = "confirmed"
	res.Status = fmt.Sprintf("Message sent to **%s** server:\n> %s", id.Name, text)
	return res, true
}
