package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "heal_b42.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "heal_b42", sc.Name)
	assert.Equal(t, OpHeal, sc.Operation)
	assert.Equal(t, []string{"Bob"}, sc.Players)
	assert.Equal(t, "2", sc.Whitelist[0]["role"])
	require.Len(t, sc.Transcript, 3)
	assert.Equal(t, `godmodeplayer "Bob" -true`, sc.Transcript[1].On)
	assert.Equal(t, "Main", sc.serverName())
	assert.Equal(t, "1s", sc.deadline().String())
}

func TestLoadScenarioErrors(t *testing.T) {
	const base = "name: s\nversion: B41\n"

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", base + "operation: online\nplayers: [Bob]\nexpect: {outcome: confirmed}\nassertion: []\n", "field assertion not found"},
		{"missing name", "version: B41\noperation: online\nplayers: [Bob]\nexpect: {outcome: confirmed}\n", "name is required"},
		{"missing version", "name: s\noperation: online\nplayers: [Bob]\nexpect: {outcome: confirmed}\n", "version is required"},
		{"missing operation", base + "players: [Bob]\nexpect: {outcome: confirmed}\n", "operation is required"},
		{"unknown operation", base + "operation: dance\nplayers: [Bob]\nexpect: {outcome: confirmed}\n", `unknown operation "dance"`},
		{"teleport arity", base + "operation: teleport\nplayers: [Bob]\nexpect: {outcome: confirmed}\n", "teleport needs 2 player(s), got 1"},
		{"online without players", base + "operation: online\nexpect: {outcome: confirmed}\n", "at least one player"},
		{"bad deadline", base + "operation: online\nplayers: [Bob]\ndeadline: soon\nexpect: {outcome: confirmed}\n", "deadline"},
		{"missing outcome", base + "operation: online\nplayers: [Bob]\n", "expect.outcome is required"},
		{"bad outcome", base + "operation: online\nplayers: [Bob]\nexpect: {outcome: maybe}\n", "unknown outcome"},
		{"empty transcript key", base + "operation: online\nplayers: [Bob]\nexpect: {outcome: confirmed}\ntranscript: [{lines: [x]}]\n", "transcript[0]: on is required"},
		{"bad assertion", base + "operation: online\nplayers: [Bob]\nexpect: {outcome: confirmed}\nassertions: [{type: command_sent}]\n", "command is required"},
		{"unknown assertion", base + "operation: online\nplayers: [Bob]\nexpect: {outcome: confirmed}\nassertions: [{type: vibes}]\n", "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindScenariosFilter(t *testing.T) {
	all, err := FindScenarios(filepath.Join("testdata", "scenarios"), "")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	heals, err := FindScenarios(filepath.Join("testdata", "scenarios"), "heal_*")
	require.NoError(t, err)
	assert.Len(t, heals, 3)

	_, err = FindScenarios(filepath.Join("testdata", "scenarios"), "[")
	assert.Error(t, err)
}
