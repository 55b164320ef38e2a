// Package strategy holds the per-build command and log-phrase table.
//
// Each supported game build has a Strategy describing how to phrase
// console commands and how the server reports their effect in the
// console log. The table is defined in CUE (strategies.cue, embedded)
// and can be extended or overridden by an operator-supplied CUE file
// without rebuilding.
package strategy

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Version names a game build generation.
type Version string

const (
	B41 Version = "B41"
	B42 Version = "B42"
)

// ErrUnknownVersion is returned when no strategy matches a build.
var ErrUnknownVersion = errors.New("unknown game version")

// Args are the values available to command and phrase templates.
type Args struct {
	Player string
	Target string
	Skill  string
	XP     int
}

// Commands are console command templates.
type Commands struct {
	Players  string   `json:"players"`
	Heal     []string `json:"heal"`
	Teleport string   `json:"teleport"`
	AddXP    string   `json:"add_xp"`
}

// Phrases are log line fragment templates. All fragments of a phrase
// must appear in one line for it to match.
type Phrases struct {
	RosterHeader string   `json:"roster_header"`
	HealOn       []string `json:"heal_on"`
	HealOff      []string `json:"heal_off"`
	Teleported   []string `json:"teleported"`
	XPAdded      []string `json:"xp_added"`
}

// AccessRule identifies ordinary players in the whitelist table.
type AccessRule struct {
	Column string   `json:"column"`
	Normal []string `json:"normal"`
}

type timingSource struct {
	Presence     string `json:"presence"`
	Heal         string `json:"heal"`
	HealSpacing  string `json:"heal_spacing"`
	Teleport     string `json:"teleport"`
	AddXP        string `json:"add_xp"`
	AddXPSpacing string `json:"add_xp_spacing"`
}

// Timing holds verification deadlines and command spacing.
type Timing struct {
	Presence     time.Duration
	Heal         time.Duration
	HealSpacing  time.Duration
	Teleport     time.Duration
	AddXP        time.Duration
	AddXPSpacing time.Duration
}

// Strategy is one build's entry in the table.
type Strategy struct {
	Version    Version
	JavaMarker string
	Commands   Commands
	Phrases    Phrases
	Access     AccessRule
	Timing     Timing
}

// PlayersCommand lists connected players.
func (s *Strategy) PlayersCommand() string { return s.Commands.Players }

// RosterHeader is the log marker preceding the player list.
func (s *Strategy) RosterHeader() string { return s.Phrases.RosterHeader }

// HealCommands returns the commands that toggle god mode on and off.
func (s *Strategy) HealCommands(player string) ([]string, error) {
	return renderAll(s.Commands.Heal, Args{Player: player})
}

// TeleportCommand moves player to target.
func (s *Strategy) TeleportCommand(player, target string) (string, error) {
	return render(s.Commands.Teleport, Args{Player: player, Target: target})
}

// AddXPCommand grants xp in skill.
func (s *Strategy) AddXPCommand(player, skill string, xp int) (string, error) {
	return render(s.Commands.AddXP, Args{Player: player, Skill: skill, XP: xp})
}

// HealPhrases returns the on and off fragments for player.
func (s *Strategy) HealPhrases(player string) (on, off []string, err error) {
	if on, err = renderAll(s.Phrases.HealOn, Args{Player: player}); err != nil {
		return nil, nil, err
	}
	if off, err = renderAll(s.Phrases.HealOff, Args{Player: player}); err != nil {
		return nil, nil, err
	}
	return on, off, nil
}

// TeleportedPhrase returns the fragments confirming a teleport.
func (s *Strategy) TeleportedPhrase(player, target string) ([]string, error) {
	return renderAll(s.Phrases.Teleported, Args{Player: player, Target: target})
}

// XPAddedPhrase returns the fragments confirming one xp grant.
func (s *Strategy) XPAddedPhrase(player string) ([]string, error) {
	return renderAll(s.Phrases.XPAdded, Args{Player: player})
}

// IsNormalPlayer applies the access rule to a whitelist row keyed by
// column name. A NULL column is expected to be present as "".
func (s *Strategy) IsNormalPlayer(row map[string]string) (bool, error) {
	raw, ok := row[s.Access.Column]
	if !ok {
		return false, fmt.Errorf("whitelist has no %q column for %s", s.Access.Column, s.Version)
	}
	value := strings.TrimSpace(raw)
	for _, n := range s.Access.Normal {
		if value == n {
			return true, nil
		}
	}
	return false, nil
}

func render(src string, args Args) (string, error) {
	tmpl, err := template.New("").Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", src, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("render template %q: %w", src, err)
	}
	return buf.String(), nil
}

func renderAll(srcs []string, args Args) ([]string, error) {
	out := make([]string, 0, len(srcs))
	for _, src := range srcs {
		s, err := render(src, args)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (t timingSource) parse() (Timing, error) {
	var out Timing
	fields := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"presence", t.Presence, &out.Presence},
		{"heal", t.Heal, &out.Heal},
		{"heal_spacing", t.HealSpacing, &out.HealSpacing},
		{"teleport", t.Teleport, &out.Teleport},
		{"add_xp", t.AddXP, &out.AddXP},
		{"add_xp_spacing", t.AddXPSpacing, &out.AddXPSpacing},
	}
	for _, f := range fields {
		d, err := time.ParseDuration(f.src)
		if err != nil {
			return Timing{}, fmt.Errorf("timing.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return out, nil
}
