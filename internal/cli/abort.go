package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/zomboctl/internal/countdown"
)

// AbortResult is the JSON payload of the abort command.
type AbortResult struct {
	Server    string `json:"server"`
	Requested bool   `json:"requested"`
}

// NewAbortCommand creates the abort command.
func NewAbortCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <server>",
		Short: "Abort a running restart countdown",
		Long: `Ask the restart countdown of a server to stop. The countdown may run
in another zomboctl process; it stops within one tick and tells players
and the announce channel.

Exit codes:
  0 - Abort requested
  2 - Nothing to abort, already restarting, or an abort is pending

Example:
  zomboctl abort Main`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAbort(rootOpts, args[0], cmd)
		},
	}
}

func runAbort(opts *RootOptions, name string, cmd *cobra.Command) error {
	a, err := loadApp(opts, cmd)
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

	ctx, stop := signalContext(cmd)
	defer stop()

	res := AbortResult{Server: id.Name}
	err = a.coordinator(st).Abort(ctx, id)

	var refused *countdown.RefusedError
	switch {
	case errors.As(err, &refused):
		if outErr := a.out.Error("E_REFUSED", refused.Reason, res); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "abort refused", err)
	case err != nil:
		return WrapExitError(ExitFailure, "abort failed", err)
	}

	res.Requested = true
	if a.out.Format == "json" {
		return a.out.Success(res)
	}
	return a.out.Success(fmt.Sprintf("Abort requested for %s.", id.Name))
}
