package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/zomboctl/internal/strategy"
)

// Operations a scenario can run.
const (
	OpOnline        = "online"
	OpHeal          = "heal"
	OpTeleport      = "teleport"
	OpRestoreSkills = "restore_skills"
)

// Scenario replays a captured console transcript through one player
// operation and checks what it reports.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Version selects the strategy entry (B41, B42, ...).
	Version strategy.Version `yaml:"version"`

	// Server is the server name used in statuses. Default "Main".
	Server string `yaml:"server,omitempty"`

	// Operation is one of online, heal, teleport, restore_skills.
	Operation string `yaml:"operation"`

	// Players are the operation's arguments: every player for online,
	// the player for heal and restore_skills, player then target for
	// teleport.
	Players []string `yaml:"players"`

	// Whitelist rows, keyed by column name.
	Whitelist []map[string]string `yaml:"whitelist,omitempty"`

	// PerkLog is the content of the player's PerkLog for restore_skills.
	PerkLog string `yaml:"perk_log,omitempty"`

	// Transcript lists the console's answers. Each command sent is
	// answered by the first unused entry whose On is a prefix of it;
	// unanswered commands produce no lines.
	Transcript []Response `yaml:"transcript"`

	// Deadline replaces every verification deadline. Default 1s.
	Deadline string `yaml:"deadline,omitempty"`

	// Expect is the report the operation must produce.
	Expect Expect `yaml:"expect"`

	// Assertions validate the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Response is one transcript entry.
type Response struct {
	On    string   `yaml:"on"`
	Lines []string `yaml:"lines"`
}

// Expect is the expected operation report.
type Expect struct {
	// Outcome is confirmed, rejected or timed_out.
	Outcome string `yaml:"outcome"`

	// Status is matched as a substring when set.
	Status string `yaml:"status,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "command_sent": a command starting with Command was sent
	// - "command_order": Commands prefixes were sent in this order
	// - "command_count": exactly Count commands start with Command
	// - "status_contains": the status contains Text
	Type string `yaml:"type"`

	Command  string   `yaml:"command,omitempty"`
	Commands []string `yaml:"commands,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	Text     string   `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertCommandSent    = "command_sent"
	AssertCommandOrder   = "command_order"
	AssertCommandCount   = "command_count"
	AssertStatusContains = "status_contains"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios lists the .yaml and .yml files under dir whose base
// name matches filter (a filepath.Match pattern; empty matches all).
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(path), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func (s *Scenario) deadline() time.Duration {
	if s.Deadline == "" {
		return time.Second
	}
	d, _ := time.ParseDuration(s.Deadline)
	return d
}

func (s *Scenario) serverName() string {
	if s.Server == "" {
		return "Main"
	}
	return s.Server
}

// validateScenario checks required fields and argument counts.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Version == "" {
		return fmt.Errorf("version is required")
	}

	want := map[string]int{OpHeal: 1, OpRestoreSkills: 1, OpTeleport: 2}
	switch s.Operation {
	case OpOnline:
		if len(s.Players) == 0 {
			return fmt.Errorf("online needs at least one player")
		}
	case OpHeal, OpTeleport, OpRestoreSkills:
		if len(s.Players) != want[s.Operation] {
			return fmt.Errorf("%s needs %d player(s), got %d", s.Operation, want[s.Operation], len(s.Players))
		}
	case "":
		return fmt.Errorf("operation is required")
	default:
		return fmt.Errorf("unknown operation %q", s.Operation)
	}

	if s.Deadline != "" {
		if d, err := time.ParseDuration(s.Deadline); err != nil || d <= 0 {
			return fmt.Errorf("deadline: %q is not a positive duration", s.Deadline)
		}
	}

	switch s.Expect.Outcome {
	case "confirmed", "rejected", "timed_out":
	case "":
		return fmt.Errorf("expect.outcome is required")
	default:
		return fmt.Errorf("expect.outcome: unknown outcome %q", s.Expect.Outcome)
	}

	for i, r := range s.Transcript {
		if r.On == "" {
			return fmt.Errorf("transcript[%d]: on is required", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	switch a.Type {
	case AssertCommandSent:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for command_sent", index)
		}
	case AssertCommandOrder:
		if len(a.Commands) == 0 {
			return fmt.Errorf("assertions[%d]: commands list is required for command_order", index)
		}
	case AssertCommandCount:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for command_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for command_count", index)
		}
	case AssertStatusContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for status_contains", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
