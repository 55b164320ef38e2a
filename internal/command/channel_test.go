package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zomboctl/internal/server"
	"github.com/roach88/zomboctl/internal/testutil"
)

var testServer = server.Identity{Name: "Main", SystemUser: "pzmain"}

func TestScriptChannelSendBuildsSudoArgv(t *testing.T) {
	runner := &testutil.FakeRunner{}
	ch := &ScriptChannel{Runner: runner, Sudo: true}

	require.NoError(t, ch.Send(context.Background(), testServer, "players"))

	require.Len(t, runner.Calls, 1)
	assert.Equal(t,
		[]string{"sudo", "-u", "pzmain", "/home/pzmain/pzserver", "send", "players"},
		runner.Calls[0])
}

func TestScriptChannelSendWithoutSudo(t *testing.T) {
	runner := &testutil.FakeRunner{}
	ch := &ScriptChannel{Runner: runner}

	require.NoError(t, ch.Send(context.Background(), testServer, "players"))
	assert.Equal(t, []string{"/home/pzmain/pzserver", "send", "players"}, runner.Calls[0])
}

func TestScriptChannelSendWrapsRunnerError(t *testing.T) {
	boom := errors.New("script missing")
	runner := &testutil.FakeRunner{Err: boom}
	ch := &ScriptChannel{Runner: runner, Sudo: true}

	err := ch.Send(context.Background(), testServer, "players")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "Main")
}

func TestServerMessageStripsQuotes(t *testing.T) {
	assert.Equal(t, `servermsg "Restart in 5 minutes, dont log out"`,
		ServerMessage(`Restart in "5" minutes, don't log out`))
}

func TestMessageSendsServermsg(t *testing.T) {
	ch := &testutil.FakeConsole{}
	require.NoError(t, Message(context.Background(), ch, testServer, "hello"))
	assert.Equal(t, []string{`servermsg "hello"`}, ch.Commands("Main"))
}
