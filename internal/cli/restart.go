package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/zomboctl/internal/countdown"
	"github.com/roach88/zomboctl/internal/restart"
	"github.com/roach88/zomboctl/internal/store"
)

// RestartOptions holds flags for the restart command.
type RestartOptions struct {
	*RootOptions
	By      string // who asked, for the announcement
	Message string // replaces the default announcement
}

// RestartResult is the JSON payload of the restart command.
type RestartResult struct {
	Server    string `json:"server"`
	Restarted bool   `json:"restarted"`
	Aborted   bool   `json:"aborted"`
}

// NewRestartCommand creates the restart command.
func NewRestartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restart <server>",
		Short: "Restart a server after an announced countdown",
		Long: `Announce a restart, count down while telling players how long is
left, then restart the server's systemd unit.

Press Ctrl-C once to abort the countdown; players and the announce
channel are told. Any other shell can abort it with "zomboctl abort".
SIGTERM stops waiting without announcing an abort. Only one countdown
per server runs at a time across every zomboctl sharing the state
database.

Exit codes:
  0 - Server restarted
  1 - Countdown aborted or restart failed
  2 - Command error (bad config, server not running, etc.)

Example:
  zomboctl restart Main
  zomboctl restart Main --by "Admin Ann"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestart(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.By, "by", "", "name shown as the initiator (default current user)")
	cmd.Flags().StringVar(&opts.Message, "message", "", "announcement text (replaces the default)")

	return cmd
}

func runRestart(opts *RestartOptions, name string, cmd *cobra.Command) error {
	a, err := loadApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	id, err := a.server(name)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := a.cfg.Countdown
	coord := a.coordinator(st)

	announce := opts.Message
	if announce == "" {
		announce = fmt.Sprintf("%s has initiated the **%s** auto restart. Restarting in %s.",
			initiator(opts.By), id.Name, cfg.Duration)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// SIGINT aborts the countdown, SIGTERM stops waiting.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for {
			select {
			case sig := <-sigChan:
				if sig == syscall.SIGTERM {
					a.logger.Info("received signal, shutting down", "signal", sig)
					cancel()
					return
				}
				if err := coord.Abort(ctx, id); err != nil {
					a.logger.Warn("abort refused", "server", id.Name, "reason", countdown.Reason(err))
					continue
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Abort signal sent for %s.\n", id.Name)
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Restarting %s in %s. Press Ctrl-C to abort.\n", id.Name, cfg.Duration)
	restarted, err := coord.Start(ctx, id, announce)
	res := RestartResult{Server: id.Name, Restarted: restarted}

	var refused *countdown.RefusedError
	switch {
	case errors.As(err, &refused):
		if outErr := a.out.Error("E_REFUSED", refused.Reason, res); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "restart refused", err)
	case err != nil:
		if outErr := a.out.Error("E_RESTART", err.Error(), res); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "restart failed", err)
	case !restarted:
		res.Aborted = true
		if outErr := a.out.Error("E_ABORTED", fmt.Sprintf("Restart of %s aborted.", id.Name), res); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "countdown aborted")
	}

	if a.out.Format == "json" {
		return a.out.Success(res)
	}
	return a.out.Success(fmt.Sprintf("%s restarted.", id.Name))
}

// coordinator builds a countdown coordinator sharing its sessions through
// st.
func (a *app) coordinator(st *store.Store) *countdown.Coordinator {
	cfg := a.cfg.Countdown
	return countdown.New(countdown.Config{
		Channel:   a.channel(),
		Chat:      a.announcer(),
		Restarter: restart.NewSystemctl(a.cfg.UseSudo(), a.logger),
		Duration:  cfg.Duration.Std(),
		Tick:      cfg.Tick.Std(),
		Sessions:  st,
		Logger:    a.logger,
	})
}

func initiator(by string) string {
	if by != "" {
		return by
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "An admin"
}
