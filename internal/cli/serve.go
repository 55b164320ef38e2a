package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Mirror support tickets to chat until stopped",
		Long: `Poll the tickets table of every configured server and mirror it to
the ticket webhook: one card per new question, edited when the question
is answered.

Progress is kept in the state database (state_path), so a restart
neither reposts nor skips tickets.

Example:
  zomboctl serve --config /etc/zomboctl/config.yaml
  zomboctl serve --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	a, err := loadApp(opts, cmd)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			a.logger.Error("error closing state database", "error", closeErr)
		}
	}()

	rec, err := a.reconciler(st, a.cfg.Servers)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	a.logger.Info("ticket mirror starting", "servers", a.cfg.ServerNames(), "interval", a.cfg.Tickets.Interval)
	fmt.Fprintln(cmd.ErrOrStderr(), "Mirroring tickets. Press Ctrl-C to stop.")

	if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "ticket mirror error", err)
	}
	a.logger.Info("ticket mirror stopped gracefully")
	return nil
}
