// Package restart restarts game servers through the OS service manager
// and checks whether their process is alive.
package restart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/shell"
)

// GameProcess is the executable name of a running dedicated server.
const GameProcess = "ProjectZomboid64"

// Sink restarts a server and reports whether it is running.
type Sink interface {
	Restart(ctx context.Context, id server.Identity) error
	IsRunning(ctx context.Context, id server.Identity) (bool, error)
}

// Systemctl restarts servers with
//
//	sudo /usr/bin/systemctl restart <unit>
//
// and detects them with "ps -f -u <system_user>".
type Systemctl struct {
	Runner shell.Runner

	// Binary is the systemctl path. Default /usr/bin/systemctl.
	Binary string

	// Sudo prefixes the restart with sudo.
	Sudo bool

	Logger *slog.Logger
}

// NewSystemctl returns a Systemctl using os/exec.
func NewSystemctl(sudo bool, logger *slog.Logger) *Systemctl {
	return &Systemctl{Runner: shell.Exec{}, Sudo: sudo, Logger: logger}
}

func (s *Systemctl) Restart(ctx context.Context, id server.Identity) error {
	binary := s.Binary
	if binary == "" {
		binary = "/usr/bin/systemctl"
	}
	argv := []string{binary, "restart", id.ServiceUnit()}
	if s.Sudo {
		argv = append([]string{"sudo"}, argv...)
	}

	if _, err := s.Runner.Run(ctx, argv[0], argv[1:]...); err != nil {
		s.logger().Error("restart failed", "server", id.Name, "unit", id.ServiceUnit(), "error", err)
		return fmt.Errorf("restart %s: %w", id.Name, err)
	}
	s.logger().Info("server restarted", "server", id.Name, "unit", id.ServiceUnit())
	return nil
}

// IsRunning lists the processes of the server's system user and looks
// for the game executable. ps exits non-zero when the user has no
// processes, which counts as not running.
func (s *Systemctl) IsRunning(ctx context.Context, id server.Identity) (bool, error) {
	out, err := s.Runner.Run(ctx, "ps", "-f", "-u", id.SystemUser)
	if err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) && len(out) == 0 {
			s.logger().Debug("no processes for user", "server", id.Name, "error", err)
			return false, nil
		}
		return false, fmt.Errorf("check %s: %w", id.Name, err)
	}
	for _, line := range bytes.Split(out, []byte("\n")) {
		if bytes.Contains(line, []byte(GameProcess)) {
			s.logger().Debug("server is running", "server", id.Name, "process", string(bytes.TrimSpace(line)))
			return true, nil
		}
	}
	return false, nil
}

func (s *Systemctl) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}
