// Package shell runs short-lived external commands (the LinuxGSM control
// script, systemctl, ps) on behalf of the command channel and the
// restart sink.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExitError is returned when the program ran but exited non-zero. Stderr
// is folded into the message so callers can log a single value.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d (%s)", e.Command, e.ExitCode, e.Stderr)
}

// Exec is the production Runner backed by os/exec.
type Exec struct{}

// Run starts name with args, waits for it, and returns stdout. The
// process is killed if ctx is cancelled first.
func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), &ExitError{
			Command:  name,
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}
	return nil, fmt.Errorf("%s: %w", name, err)
}

// AsUser prefixes argv with "sudo -u user" when user is non-empty.
func AsUser(user string, argv ...string) []string {
	if user == "" {
		return argv
	}
	return append([]string{"sudo", "-u", user}, argv...)
}
