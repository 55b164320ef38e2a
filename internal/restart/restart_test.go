package restart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/shell"
	"github.com/roach88/zomboctl/internal/testutil"
)

var mainServer = server.Identity{Name: "Main", SystemUser: "pzmain"}

func TestRestartInvokesSystemctl(t *testing.T) {
	runner := &testutil.FakeRunner{}
	sink := &Systemctl{Runner: runner, Sudo: true}

	require.NoError(t, sink.Restart(context.Background(), mainServer))
	assert.Equal(t, [][]string{{"sudo", "/usr/bin/systemctl", "restart", "pzmain"}}, runner.Calls)
}

func TestRestartUsesUnitOverride(t *testing.T) {
	runner := &testutil.FakeRunner{}
	sink := &Systemctl{Runner: runner, Binary: "systemctl"}
	id := mainServer
	id.Unit = "pz-main.service"

	require.NoError(t, sink.Restart(context.Background(), id))
	assert.Equal(t, [][]string{{"systemctl", "restart", "pz-main.service"}}, runner.Calls)
}

func TestRestartFailure(t *testing.T) {
	cause := &shell.ExitError{Command: "sudo", ExitCode: 1, Stderr: "unit not found"}
	sink := &Systemctl{Runner: &testutil.FakeRunner{Err: cause}}

	err := sink.Restart(context.Background(), mainServer)
	require.Error(t, err)
	var exitErr *shell.ExitError
	assert.True(t, errors.As(err, &exitErr))
	assert.Contains(t, err.Error(), "Main")
}

func TestIsRunning(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
		want   bool
	}{
		{
			name: "game process present",
			output: "UID   PID  PPID  C STIME TTY TIME CMD\n" +
				"pzmain 812 1 9 10:02 ? 01:22:10 ./ProjectZomboid64 -Xms8g\n",
			want: true,
		},
		{
			name:   "only the shell",
			output: "UID   PID  PPID  C STIME TTY TIME CMD\npzmain 900 1 0 10:00 ? 00:00:00 bash\n",
			want:   false,
		},
		{
			name: "no processes",
			err:  &shell.ExitError{Command: "ps", ExitCode: 1},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &testutil.FakeRunner{Output: []byte(tt.output), Err: tt.err}
			sink := &Systemctl{Runner: runner}

			got, err := sink.IsRunning(context.Background(), mainServer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []string{"ps", "-f", "-u", "pzmain"}, runner.Calls[0])
		})
	}
}

func TestIsRunningCheckError(t *testing.T) {
	sink := &Systemctl{Runner: &testutil.FakeRunner{Err: errors.New("exec: ps not found")}}
	_, err := sink.IsRunning(context.Background(), mainServer)
	assert.Error(t, err)
}
