package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/zomboctl/internal/lockfile"
	"github.com/roach88/zomboctl/internal/reconcile"
	"github.com/roach88/zomboctl/internal/store"
)

// PollResult is one server's line in the tickets poll output.
type PollResult struct {
	Server string            `json:"server"`
	Result *reconcile.Result `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`

	// Skipped is true when another process was polling the server.
	Skipped bool `json:"skipped,omitempty"`
}

// NewTicketsCommand creates the tickets command group.
func NewTicketsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Inspect and repair the ticket mirror",
	}
	cmd.AddCommand(newTicketsPollCommand(rootOpts))
	cmd.AddCommand(newTicketsResetCommand(rootOpts))
	cmd.AddCommand(newTicketsShowCommand(rootOpts))
	return cmd
}

// TrackingResult is the JSON payload of tickets show.
type TrackingResult struct {
	Server      string    `json:"server"`
	TicketID    int64     `json:"ticket_id"`
	MessageID   string    `json:"message_id"`
	ThreadID    string    `json:"thread_id,omitempty"`
	State       string    `json:"state"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (r TrackingResult) String() string {
	return fmt.Sprintf("%s ticket #%d: message %s, %s, posted %s",
		r.Server, r.TicketID, r.MessageID, r.State, r.ProcessedAt.Format(time.RFC3339))
}

func newTicketsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <server> <ticket-id>",
		Short: "Show which chat message mirrors a ticket",
		Long: `Print the tracking row of a ticket: the chat message mirroring it,
the state last rendered and when it was posted.

Example:
  zomboctl tickets show Main 42`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicketsShow(rootOpts, args[0], args[1], cmd)
		},
	}
}

func newTicketsPollCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll [server]...",
		Short: "Run one reconciliation pass",
		Long: `Run one reconciliation pass for the named servers (default all) and
print what it did. The pass drains every pending ticket. A server that
another zomboctl process (such as serve) is polling right now is skipped.

Example:
  zomboctl tickets poll
  zomboctl tickets poll Main --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicketsPoll(rootOpts, args, cmd)
		},
	}
}

func newTicketsResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <server>",
		Short: "Forget every mirrored ticket of a server",
		Long: `Drop the server's tracking rows and watermark. The next poll posts
every ticket in the table again. Use after wiping a world by hand.

Example:
  zomboctl tickets reset Main`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicketsReset(rootOpts, args[0], cmd)
		},
	}
}

func runTicketsPoll(opts *RootOptions, names []string, cmd *cobra.Command) error {
	a, err := loadApp(opts, cmd)
	if err != nil {
		return err
	}
	ids, err := a.servers(names)
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := a.reconciler(st, ids)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	results := make([]PollResult, 0, len(ids))
	failed := 0
	for _, id := range ids {
		res, err := rec.Poll(ctx, id)
		if errors.Is(err, reconcile.ErrPollInProgress) {
			results = append(results, PollResult{Server: id.Name, Skipped: true})
			continue
		}
		if err != nil {
			a.logger.Error("poll failed", "server", id.Name, "error", err)
			results = append(results, PollResult{Server: id.Name, Error: err.Error()})
			failed++
			continue
		}
		results = append(results, PollResult{Server: id.Name, Result: &res})
	}

	if a.out.Format == "json" {
		if failed > 0 {
			if err := a.out.Error("E_POLL_FAILED", fmt.Sprintf("%d server(s) failed", failed), results); err != nil {
				return err
			}
		} else if err := a.out.Success(results); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(w, "✗ %s: %s\n", r.Server, r.Error)
				continue
			}
			if r.Skipped {
				fmt.Fprintf(w, "- %s: skipped, a poll is already in progress\n", r.Server)
				continue
			}
			fmt.Fprintf(w, "✓ %s: %s\n", r.Server, summarize(r.Result))
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d server(s) failed", failed))
	}
	return nil
}

func summarize(r *reconcile.Result) string {
	parts := []string{
		fmt.Sprintf("posted %d", r.Posted),
		fmt.Sprintf("edited %d", r.Edited),
		fmt.Sprintf("untracked %d", r.Untracked),
	}
	if r.Pruned > 0 {
		parts = append(parts, fmt.Sprintf("pruned %d", r.Pruned))
	}
	if r.EditFailures > 0 {
		parts = append(parts, fmt.Sprintf("%d edit(s) deferred", r.EditFailures))
	}
	if r.Reset {
		parts = append([]string{"table reset"}, parts...)
	}
	return fmt.Sprintf("%s (watermark %d)", strings.Join(parts, ", "), r.Watermark)
}

func runTicketsReset(opts *RootOptions, name string, cmd *cobra.Command) error {
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

	lock, err := st.Lock(reconcile.PollLock, id.Name)
	if errors.Is(err, lockfile.ErrHeld) {
		msg := fmt.Sprintf("%s is being polled right now, try again in a moment.", id.Name)
		if outErr := a.out.Error("E_POLL_IN_PROGRESS", msg, nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "reset refused", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "reset failed", err)
	}
	defer lock.Unlock()

	if err := st.Reset(cmd.Context(), id.Name, time.Now()); err != nil {
		return WrapExitError(ExitFailure, "reset failed", err)
	}
	a.logger.Info("ticket tracking reset", "server", id.Name)

	if a.out.Format == "json" {
		return a.out.Success(map[string]string{"server": id.Name})
	}
	return a.out.Success(fmt.Sprintf("Ticket tracking of %s reset.", id.Name))
}

func runTicketsShow(opts *RootOptions, name, ticket string, cmd *cobra.Command) error {
	ticketID, err := strconv.ParseInt(ticket, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid ticket id %q", ticket), err)
	}
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

	tr, err := st.Tracking(cmd.Context(), id.Name, ticketID)
	if errors.Is(err, store.ErrNotTracked) {
		msg := fmt.Sprintf("Ticket #%d of %s is not mirrored.", ticketID, id.Name)
		if outErr := a.out.Error("E_NOT_TRACKED", msg, nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "ticket not tracked", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "lookup failed", err)
	}

	return a.out.Success(TrackingResult{
		Server:      tr.Server,
		TicketID:    tr.TicketID,
		MessageID:   tr.MessageID,
		ThreadID:    tr.ThreadID,
		State:       string(tr.LastState),
		ProcessedAt: tr.ProcessedAt,
	})
}
