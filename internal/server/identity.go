// Package server describes the game-server processes zomboctl operates.
//
// An Identity is the opaque key every other package works with. It is
// loaded once from configuration and never mutated; all filesystem
// locations the coordination layer touches (console log, game database,
// version marker, control script) are derived from it.
package server

import (
	"fmt"
	"path/filepath"
)

// Identity identifies one external Project Zomboid server. Each server
// runs under its own system user and is managed as a systemd unit of the
// same name.
type Identity struct {
	// Name is the human-facing server name used in chat output and as the
	// key for local tracking rows.
	Name string `yaml:"server_name" json:"server_name"`

	// SystemUser is the Linux account the server runs under.
	SystemUser string `yaml:"system_user" json:"system_user"`

	// Port is the game port. Informational only.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Home overrides the account home directory. Defaults to
	// /home/<system_user>.
	Home string `yaml:"home,omitempty" json:"home,omitempty"`

	// Unit overrides the systemd unit name. Defaults to SystemUser.
	Unit string `yaml:"unit,omitempty" json:"unit,omitempty"`

	// Optional path overrides. Empty means "derive from Home".
	ConsoleLog  string `yaml:"console_log,omitempty" json:"console_log,omitempty"`
	GameDB      string `yaml:"game_db,omitempty" json:"game_db,omitempty"`
	ReleaseFile string `yaml:"release_file,omitempty" json:"release_file,omitempty"`
	PerkLogDir  string `yaml:"perk_log_dir,omitempty" json:"perk_log_dir,omitempty"`
	Script      string `yaml:"script,omitempty" json:"script,omitempty"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s (%s)", id.Name, id.SystemUser)
}

// HomeDir returns the account home directory.
func (id Identity) HomeDir() string {
	if id.Home != "" {
		return id.Home
	}
	return filepath.Join("/home", id.SystemUser)
}

// ServiceUnit returns the systemd unit managing the server.
func (id Identity) ServiceUnit() string {
	if id.Unit != "" {
		return id.Unit
	}
	return id.SystemUser
}

// ConsoleLogPath is the continuously-appended console log the verifier tails.
func (id Identity) ConsoleLogPath() string {
	return id.pathOr(id.ConsoleLog, "log", "console", "pzserver-console.log")
}

// GameDBPath is the SQLite database owned and written by the game process.
func (id Identity) GameDBPath() string {
	return id.pathOr(id.GameDB, "Zomboid", "db", "pzserver.db")
}

// ReleaseFilePath is the bundled JRE release file used to detect the
// game build.
func (id Identity) ReleaseFilePath() string {
	return id.pathOr(id.ReleaseFile, "serverfiles", "jre64", "release")
}

// PerkLogDirPath holds the *PerkLog.txt files written by the game.
func (id Identity) PerkLogDirPath() string {
	return id.pathOr(id.PerkLogDir, "Zomboid", "Logs")
}

// ScriptPath is the LinuxGSM control script used to inject console
// commands.
func (id Identity) ScriptPath() string {
	return id.pathOr(id.Script, "pzserver")
}

func (id Identity) pathOr(override string, elem ...string) string {
	if override != "" {
		return override
	}
	return filepath.Join(append([]string{id.HomeDir()}, elem...)...)
}

// Validate reports whether the identity has the fields every component
// needs.
func (id Identity) Validate() error {
	if id.Name == "" {
		return fmt.Errorf("server_name is required")
	}
	if id.SystemUser == "" {
		return fmt.Errorf("server %q: system_user is required", id.Name)
	}
	return nil
}
