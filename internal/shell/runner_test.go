package shell

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunCapturesStdout(t *testing.T) {
	out, err := Exec{}.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestExecRunFoldsStderrIntoExitError(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, "boom", exitErr.Stderr)
	assert.Contains(t, err.Error(), "exit status 3 (boom)")
}

func TestExecRunMissingBinary(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), "/nonexistent/zomboctl-binary")
	require.Error(t, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestAsUser(t *testing.T) {
	assert.Equal(t, []string{"ps", "-f"}, AsUser("", "ps", "-f"))
	assert.Equal(t, []string{"sudo", "-u", "pz", "ps", "-f"}, AsUser("pz", "ps", "-f"))
}
