// Package config loads the zomboctl configuration file.
//
// Configuration comes from a single file given by the --config flag or
// the ZOMBOCTL_CONFIG environment variable. There is no discovery and no
// layering of files. Two formats are accepted, chosen by extension:
//
//   - .yaml / .yml: the full document described by Config.
//   - .json / .jsonc: the same document as JSON with comments allowed, or
//     a bare array of servers (the servers.json layout of older bots).
//
// Webhook URLs are secrets and may be supplied through the environment
// instead of the file; see the Env* constants. Durations are Go duration
// strings ("30s", "5m").
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/roach88/zomboctl/internal/server"
)

// Environment variables read by Load.
const (
	EnvConfig          = "ZOMBOCTL_CONFIG"
	EnvTicketWebhook   = "ZOMBOCTL_TICKET_WEBHOOK"
	EnvTicketThread    = "ZOMBOCTL_TICKET_THREAD"
	EnvAnnounceWebhook = "ZOMBOCTL_ANNOUNCE_WEBHOOK"
)

// Log source kinds.
const (
	LogSourceExec   = "exec"
	LogSourceFollow = "follow"
)

// ErrUnknownServer is returned by Server for names not in the file.
var ErrUnknownServer = errors.New("unknown server")

// Config is the zomboctl configuration.
type Config struct {
	Servers []server.Identity `yaml:"servers" json:"servers"`

	// StatePath is the local tracking database. Default zomboctl.db
	// next to the config file.
	StatePath string `yaml:"state_path" json:"state_path"`

	// Sudo runs server commands as the server's system user and restarts
	// through sudo. Default true.
	Sudo *bool `yaml:"sudo" json:"sudo"`

	// NameMatching is "exact" (default) or "substring".
	NameMatching server.MatchMode `yaml:"name_matching" json:"name_matching"`

	// LogSource is "exec" (default, tail -F) or "follow" (in process).
	LogSource string `yaml:"log_source" json:"log_source"`

	// Strategies is an optional CUE file overriding the built-in
	// per-version command table.
	Strategies string `yaml:"strategies" json:"strategies"`

	Notify    NotifyConfig    `yaml:"notify" json:"notify"`
	Tickets   TicketsConfig   `yaml:"tickets" json:"tickets"`
	Countdown CountdownConfig `yaml:"countdown" json:"countdown"`
	GameDB    GameDBConfig    `yaml:"game_db" json:"game_db"`

	path string
}

// NotifyConfig configures the chat webhooks.
type NotifyConfig struct {
	// TicketWebhook receives ticket cards.
	TicketWebhook string `yaml:"ticket_webhook" json:"ticket_webhook"`

	// TicketThreadID posts ticket cards into a thread of the channel.
	TicketThreadID string `yaml:"ticket_thread_id" json:"ticket_thread_id"`

	// AnnounceWebhook receives countdown and restart notices.
	AnnounceWebhook string `yaml:"announce_webhook" json:"announce_webhook"`

	// Footer under ticket cards.
	Footer string `yaml:"footer" json:"footer"`
}

// TicketsConfig tunes the ticket reconciler and its edit governor.
type TicketsConfig struct {
	Interval         Duration `yaml:"interval" json:"interval"`
	BatchSize        int      `yaml:"batch_size" json:"batch_size"`
	MaxLockedRetries int      `yaml:"max_locked_retries" json:"max_locked_retries"`
	LockedPause      Duration `yaml:"locked_pause" json:"locked_pause"`
	EditSpacing      Duration `yaml:"edit_spacing" json:"edit_spacing"`
	EditMargin       Duration `yaml:"edit_margin" json:"edit_margin"`
	EditAttempts     int      `yaml:"edit_attempts" json:"edit_attempts"`
}

// CountdownConfig tunes restart countdowns.
type CountdownConfig struct {
	Duration Duration `yaml:"duration" json:"duration"`
	Tick     Duration `yaml:"tick" json:"tick"`
}

// GameDBConfig tunes access to the game databases.
type GameDBConfig struct {
	BusyTimeout Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

// Default returns a configuration with every tunable at its default and
// no servers.
func Default() *Config {
	sudo := true
	return &Config{
		StatePath:    "zomboctl.db",
		Sudo:         &sudo,
		NameMatching: server.MatchExact,
		LogSource:    LogSourceExec,
		Tickets: TicketsConfig{
			Interval:         Duration(30 * time.Second),
			BatchSize:        20,
			MaxLockedRetries: 3,
			LockedPause:      Duration(5 * time.Minute),
			EditSpacing:      Duration(600 * time.Millisecond),
			EditMargin:       Duration(time.Second),
			EditAttempts:     3,
		},
		Countdown: CountdownConfig{
			Duration: Duration(5 * time.Minute),
			Tick:     Duration(5 * time.Second),
		},
		GameDB: GameDBConfig{
			BusyTimeout: Duration(2 * time.Second),
		},
	}
}

// Load reads the file at path, or at $ZOMBOCTL_CONFIG when path is
// empty, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return nil, fmt.Errorf("no config file: pass --config or set %s", EnvConfig)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFile decodes the file at path over Default. It applies neither
// environment overrides nor validation.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := cfg.decodeJSON(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml, .json or .jsonc)", path, ext)
	}

	cfg.path = path
	if cfg.StatePath != "" && !filepath.IsAbs(cfg.StatePath) {
		cfg.StatePath = filepath.Join(filepath.Dir(path), cfg.StatePath)
	}
	return cfg, nil
}

func (c *Config) decodeJSON(data []byte) error {
	stripped := jsonc.ToJSON(data)
	trimmed := strings.TrimSpace(string(stripped))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(stripped, &c.Servers)
	}
	return json.Unmarshal(stripped, c)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvTicketWebhook); v != "" {
		c.Notify.TicketWebhook = v
	}
	if v := os.Getenv(EnvTicketThread); v != "" {
		c.Notify.TicketThreadID = v
	}
	if v := os.Getenv(EnvAnnounceWebhook); v != "" {
		c.Notify.AnnounceWebhook = v
	}
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// UseSudo reports whether commands go through sudo.
func (c *Config) UseSudo() bool {
	return c.Sudo == nil || *c.Sudo
}

// Server returns the server named name, compared case-insensitively.
func (c *Config) Server(name string) (server.Identity, error) {
	for _, id := range c.Servers {
		if strings.EqualFold(id.Name, name) {
			return id, nil
		}
	}
	return server.Identity{}, fmt.Errorf("%w %q (configured: %s)", ErrUnknownServer, name, strings.Join(c.ServerNames(), ", "))
}

// ServerNames lists the configured server names in file order.
func (c *Config) ServerNames() []string {
	names := make([]string, len(c.Servers))
	for i, id := range c.Servers {
		names[i] = id.Name
	}
	return names
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Servers) == 0 {
		errs = append(errs, errors.New("servers: at least one server is required"))
	}
	seen := make(map[string]bool)
	for i, id := range c.Servers {
		if err := id.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("servers[%d]: %w", i, err))
			continue
		}
		key := strings.ToLower(id.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("servers[%d]: duplicate server_name %q", i, id.Name))
		}
		seen[key] = true
	}

	if _, err := server.Matcher(c.NameMatching); err != nil {
		errs = append(errs, fmt.Errorf("name_matching: %w", err))
	}
	switch c.LogSource {
	case LogSourceExec, LogSourceFollow:
	default:
		errs = append(errs, fmt.Errorf("log_source: must be %q or %q, got %q", LogSourceExec, LogSourceFollow, c.LogSource))
	}
	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}

	if iv := c.Tickets.Interval.Std(); iv < 30*time.Second || iv > 60*time.Second {
		errs = append(errs, fmt.Errorf("tickets.interval: must be between 30s and 60s, got %s", iv))
	}
	if c.Tickets.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("tickets.batch_size: must be positive, got %d", c.Tickets.BatchSize))
	}
	if c.Tickets.MaxLockedRetries <= 0 {
		errs = append(errs, fmt.Errorf("tickets.max_locked_retries: must be positive, got %d", c.Tickets.MaxLockedRetries))
	}
	if c.Tickets.EditAttempts <= 0 {
		errs = append(errs, fmt.Errorf("tickets.edit_attempts: must be positive, got %d", c.Tickets.EditAttempts))
	}
	for name, d := range map[string]Duration{
		"tickets.locked_pause": c.Tickets.LockedPause,
		"tickets.edit_spacing": c.Tickets.EditSpacing,
		"tickets.edit_margin":  c.Tickets.EditMargin,
		"game_db.busy_timeout": c.GameDB.BusyTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative, got %s", name, d))
		}
	}
	if c.Countdown.Tick <= 0 {
		errs = append(errs, fmt.Errorf("countdown.tick: must be positive, got %s", c.Countdown.Tick))
	}
	if c.Countdown.Duration < c.Countdown.Tick {
		errs = append(errs, fmt.Errorf("countdown.duration: must be at least countdown.tick (%s), got %s", c.Countdown.Tick, c.Countdown.Duration))
	}

	return errors.Join(errs...)
}
