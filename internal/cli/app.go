package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/zomboctl/internal/command"
	"github.com/roach88/zomboctl/internal/config"
	"github.com/roach88/zomboctl/internal/gamedb"
	"github.com/roach88/zomboctl/internal/logtail"
	"github.com/roach88/zomboctl/internal/notify"
	"github.com/roach88/zomboctl/internal/ops"
	"github.com/roach88/zomboctl/internal/reconcile"
	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/store"
	"github.com/roach88/zomboctl/internal/strategy"
	"github.com/roach88/zomboctl/internal/verify"
)

// app holds what every config-driven command needs.
type app struct {
	cfg    *config.Config
	table  *strategy.Table
	logger *slog.Logger
	out    *OutputFormatter
}

// newLogger installs the CLI's slog handler: text on stderr, debug level
// under --verbose.
func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadApp loads the configuration and the strategy table it names.
func loadApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	logger := newLogger(opts, cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger.Debug("config loaded", "path", cfg.Path(), "servers", len(cfg.Servers))

	table, err := strategy.Load(cfg.Strategies)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load strategies", err)
	}

	return &app{cfg: cfg, table: table, logger: logger, out: newFormatter(opts, cmd)}, nil
}

func (a *app) server(name string) (server.Identity, error) {
	id, err := a.cfg.Server(name)
	if err != nil {
		return server.Identity{}, WrapExitError(ExitCommandError, "no such server", err)
	}
	return id, nil
}

// servers resolves names, or returns every configured server when names
// is empty.
func (a *app) servers(names []string) ([]server.Identity, error) {
	if len(names) == 0 {
		return a.cfg.Servers, nil
	}
	ids := make([]server.Identity, 0, len(names))
	for _, name := range names {
		id, err := a.server(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (a *app) gameDB() *gamedb.DB {
	return &gamedb.DB{BusyTimeout: a.cfg.GameDB.BusyTimeout.Std(), Logger: a.logger}
}

func (a *app) channel() command.Channel {
	return command.NewScriptChannel(a.cfg.UseSudo(), a.logger)
}

func (a *app) logSource() logtail.Source {
	if a.cfg.LogSource == config.LogSourceFollow {
		return &logtail.FollowSource{Logger: a.logger}
	}
	return &logtail.ExecSource{Logger: a.logger}
}

// operator wires the player operations against the live servers.
func (a *app) operator() (*ops.Operator, error) {
	matcher, err := server.Matcher(a.cfg.NameMatching)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid name matching", err)
	}
	return ops.New(ops.Config{
		Verifier: verify.New(verify.Config{
			Source:  a.logSource(),
			Channel: a.channel(),
			Logger:  a.logger,
		}),
		Strategies: a.table,
		Whitelist:  a.gameDB(),
		Matcher:    matcher,
		Logger:     a.logger,
	}), nil
}

// announcer posts countdown notices, or drops them when no announce
// webhook is configured.
func (a *app) announcer() notify.Announcer {
	if a.cfg.Notify.AnnounceWebhook == "" {
		a.logger.Warn("no announce webhook configured, chat notices are dropped")
		return notify.Discard{}
	}
	return notify.NewWebhook(a.cfg.Notify.AnnounceWebhook, "", a.logger)
}

func (a *app) openStore() (*store.Store, error) {
	st, err := store.Open(a.cfg.StatePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open state database", err)
	}
	a.logger.Debug("state database ready", "path", a.cfg.StatePath)
	return st, nil
}

// reconciler wires the ticket mirror. The ticket webhook is required.
func (a *app) reconciler(st *store.Store, servers []server.Identity) (*reconcile.Reconciler, error) {
	n := a.cfg.Notify
	if n.TicketWebhook == "" {
		return nil, NewExitError(ExitCommandError, "no ticket webhook: set notify.ticket_webhook or "+config.EnvTicketWebhook)
	}
	hook := notify.NewWebhook(n.TicketWebhook, n.TicketThreadID, a.logger)
	t := a.cfg.Tickets
	return reconcile.New(reconcile.Config{
		Servers: servers,
		Game:    a.gameDB(),
		Store:   st,
		Poster:  hook,
		Editor: notify.NewGovernor(hook, notify.GovernorConfig{
			Margin:      t.EditMargin.Std(),
			MaxAttempts: t.EditAttempts,
			Spacing:     t.EditSpacing.Std(),
			Logger:      a.logger,
		}),
		ThreadID:         n.TicketThreadID,
		Footer:           n.Footer,
		Interval:         t.Interval.Std(),
		BatchSize:        t.BatchSize,
		MaxLockedRetries: t.MaxLockedRetries,
		LockedPause:      t.LockedPause.Std(),
		Logger:           a.logger,
	}), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
