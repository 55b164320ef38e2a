// Package command injects console commands into a running game server.
//
// The channel is fire-and-forget: a nil error means the command was
// handed to the server console, not that it took effect. Confirming the
// effect is the job of package verify.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/shell"
)

// Channel sends one text command to a named server.
type Channel interface {
	Send(ctx context.Context, id server.Identity, text string) error
}

// ScriptChannel delivers commands through the LinuxGSM control script:
//
//	sudo -u <system_user> <home>/pzserver send <command>
type ScriptChannel struct {
	Runner shell.Runner

	// Sudo runs the script as the server's system user.
	Sudo bool

	Logger *slog.Logger
}

// NewScriptChannel returns a ScriptChannel using os/exec.
func NewScriptChannel(sudo bool, logger *slog.Logger) *ScriptChannel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ScriptChannel{Runner: shell.Exec{}, Sudo: sudo, Logger: logger}
}

// Send runs the control script once for text.
func (c *ScriptChannel) Send(ctx context.Context, id server.Identity, text string) error {
	user := ""
	if c.Sudo {
		user = id.SystemUser
	}
	argv := shell.AsUser(user, id.ScriptPath(), "send", text)

	out, err := c.Runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		c.logger().Error("console command failed", "server", id.Name, "command", text, "error", err)
		return fmt.Errorf("send %q to %s: %w", text, id.Name, err)
	}
	c.logger().Debug("console command sent", "server", id.Name, "command", text,
		"output", strings.TrimSpace(string(out)))
	return nil
}

func (c *ScriptChannel) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// Message broadcasts text to every player through the servermsg console
// command. Quotes are stripped because the console has no escaping.
func Message(ctx context.Context, ch Channel, id server.Identity, text string) error {
	return ch.Send(ctx, id, ServerMessage(text))
}

// ServerMessage formats text as a servermsg console command.
func ServerMessage(text string) string {
	clean := strings.NewReplacer(`"`, "", `'`, "").Replace(text)
	return `servermsg "` + clean + `"`
}
