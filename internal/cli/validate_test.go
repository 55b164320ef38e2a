package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBuiltin(t *testing.T) {
	out, _, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Strategies valid: [B41 B42]")
}

func TestValidateOverrideJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
strategies: B43: {
	java_marker: "29"
	commands: {
		heal: ["heal \"{{.Player}}\""]
		teleport: "tp \"{{.Player}}\" \"{{.Target}}\""
		add_xp: "xp \"{{.Player}}\" {{.Skill}} {{.XP}}"
	}
	phrases: {
		heal_on: ["healing {{.Player}}"]
		heal_off: ["healed {{.Player}}"]
		teleported: ["moved {{.Player}}"]
		xp_added: ["xp for {{.Player}}"]
	}
	access: {column: "role", normal: ["2"]}
}
`), 0o644))

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"B41", "B42", "B43"}, resp.Data.Versions)
}

func TestValidateInvalidOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.cue")
	require.NoError(t, os.WriteFile(path, []byte(`strategies: B43: java_marker: ""`+"\n"), 0o644))

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_INVALID_STRATEGY", resp.Error.Code)
}

func TestValidateMissingFile(t *testing.T) {
	out, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Contains(t, out, "Error [E_INVALID_STRATEGY]")
	assert.Contains(t, out, "read strategy override")
}
