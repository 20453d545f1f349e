// Package config handles configuration loading and validation for perch.
package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/perch/pkg/tmpl"
)

// Keybinding actions built into `perch tail`.
const (
	ActionRepublish = "republish"
)

// defaultKeybindings provides built-in keybindings that users can override.
var defaultKeybindings = map[string]Keybinding{
	"p": {
		Action:  ActionRepublish,
		Help:    "republish",
		Confirm: "Publish this message again on its channel?",
	},
}

// Config holds the application configuration.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Activity ActivityConfig `yaml:"activity"`
	Tail     TailConfig     `yaml:"tail"`
	DataDir  string         `yaml:"-"` // set by caller, not from config file
}

// BrokerConfig holds the timing and sizing of the message broker.
type BrokerConfig struct {
	MessageTimeout        time.Duration `yaml:"message_timeout"`
	BufferTimeout         time.Duration `yaml:"buffer_timeout"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	SweepInterval         time.Duration `yaml:"sweep_interval"`
	ClaimShards           int           `yaml:"claim_shards"`
	MaxMessagesPerChannel int           `yaml:"max_messages_per_channel"`
}

// ServerConfig holds HTTP server settings for `perch serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxPayloadBytes int64         `yaml:"max_payload_bytes"`
	// AllowedChannels restricts the channels clients may publish to or poll.
	// Entries are glob patterns; an empty list allows every channel.
	AllowedChannels []string `yaml:"allowed_channels"`
}

// ClientConfig holds settings for the CLI commands that talk to a server.
type ClientConfig struct {
	URL           string        `yaml:"url"`
	Identity      string        `yaml:"identity"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
}

// ActivityConfig controls the on-disk activity journal.
type ActivityConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

// TailConfig configures the `perch tail` viewer.
type TailConfig struct {
	// MaxEntries bounds how many entries the viewer keeps in memory.
	MaxEntries  int                   `yaml:"max_entries"`
	Keybindings map[string]Keybinding `yaml:"keybindings"`
}

// Keybinding defines a `perch tail` keybinding action.
type Keybinding struct {
	Action  string `yaml:"action"`  // built-in action name (republish)
	Help    string `yaml:"help"`    // help text shown in the viewer
	Sh      string `yaml:"sh"`      // shell command template
	Confirm string `yaml:"confirm"` // confirmation prompt (empty = no confirm)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Broker: BrokerConfig{
			MessageTimeout: 30 * time.Second,
			BufferTimeout:  50 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			SweepInterval:  time.Second,
			ClaimShards:    32,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7420",
			ShutdownTimeout: 10 * time.Second,
			MaxPayloadBytes: 1 << 20,
			AllowedChannels: []string{},
		},
		Client: ClientConfig{
			URL:           "http://127.0.0.1:7420",
			RetryDelay:    50 * time.Millisecond,
			MaxRetryDelay: 5 * time.Second,
		},
		Activity: ActivityConfig{
			Enabled:    false,
			MaxEntries: 1000,
		},
		Tail: TailConfig{
			MaxEntries:  500,
			Keybindings: map[string]Keybinding{},
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()
	cfg.Tail.Keybindings = mergeKeybindings(defaultKeybindings, cfg.Tail.Keybindings)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Broker.MessageTimeout == 0 {
		c.Broker.MessageTimeout = defaults.Broker.MessageTimeout
	}
	if c.Broker.BufferTimeout == 0 {
		c.Broker.BufferTimeout = defaults.Broker.BufferTimeout
	}
	if c.Broker.RequestTimeout == 0 {
		c.Broker.RequestTimeout = defaults.Broker.RequestTimeout
	}
	if c.Broker.SweepInterval == 0 {
		c.Broker.SweepInterval = defaults.Broker.SweepInterval
	}
	if c.Broker.ClaimShards == 0 {
		c.Broker.ClaimShards = defaults.Broker.ClaimShards
	}

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if c.Server.MaxPayloadBytes == 0 {
		c.Server.MaxPayloadBytes = defaults.Server.MaxPayloadBytes
	}

	if c.Client.URL == "" {
		c.Client.URL = defaults.Client.URL
	}
	if c.Client.RetryDelay == 0 {
		c.Client.RetryDelay = defaults.Client.RetryDelay
	}
	if c.Client.MaxRetryDelay == 0 {
		c.Client.MaxRetryDelay = defaults.Client.MaxRetryDelay
	}

	if c.Activity.MaxEntries == 0 {
		c.Activity.MaxEntries = defaults.Activity.MaxEntries
	}

	if c.Tail.MaxEntries == 0 {
		c.Tail.MaxEntries = defaults.Tail.MaxEntries
	}
}

// mergeKeybindings merges user keybindings into defaults.
// User keybindings override defaults for the same key.
func mergeKeybindings(defaults, user map[string]Keybinding) map[string]Keybinding {
	result := make(map[string]Keybinding, len(defaults)+len(user))
	maps.Copy(result, defaults)
	maps.Copy(result, user)
	return result
}

var (
	errNegative = errors.New("must not be negative")
	errRequired = errors.New("is required")
)

// Validate checks that the configuration is valid. All problems are
// reported together as criterio.FieldErrors.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.DataDir == "" {
		errs = errs.Append("data_dir", errRequired)
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"broker.message_timeout", c.Broker.MessageTimeout},
		{"broker.buffer_timeout", c.Broker.BufferTimeout},
		{"broker.request_timeout", c.Broker.RequestTimeout},
		{"broker.sweep_interval", c.Broker.SweepInterval},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"client.retry_delay", c.Client.RetryDelay},
		{"client.max_retry_delay", c.Client.MaxRetryDelay},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = errs.Append(d.field, errNegative)
		}
	}

	if c.Broker.ClaimShards < 0 {
		errs = errs.Append("broker.claim_shards", errNegative)
	}
	if c.Broker.MaxMessagesPerChannel < 0 {
		errs = errs.Append("broker.max_messages_per_channel", errNegative)
	}

	if c.Server.Addr == "" {
		errs = errs.Append("server.addr", errRequired)
	}
	if c.Server.MaxPayloadBytes < 0 {
		errs = errs.Append("server.max_payload_bytes", errNegative)
	}
	for i, pattern := range c.Server.AllowedChannels {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("server.allowed_channels[%d]", i), fmt.Errorf("invalid pattern %q", pattern))
		}
	}

	if err := validateURL(c.Client.URL); err != nil {
		errs = errs.Append("client.url", err)
	}
	if c.Client.MaxRetryDelay > 0 && c.Client.MaxRetryDelay < c.Client.RetryDelay {
		errs = errs.Append("client.max_retry_delay", fmt.Errorf("must be at least client.retry_delay (%s)", c.Client.RetryDelay))
	}

	if c.Activity.MaxEntries < 0 {
		errs = errs.Append("activity.max_entries", errNegative)
	}

	if c.Tail.MaxEntries < 0 {
		errs = errs.Append("tail.max_entries", errNegative)
	}
	for _, k := range slices.Sorted(maps.Keys(c.Tail.Keybindings)) {
		if err := validateKeybinding(c.Tail.Keybindings[k]); err != nil {
			errs = errs.Append(fmt.Sprintf("tail.keybindings[%s]", k), err)
		}
	}

	return errs.ToError()
}

func validateKeybinding(kb Keybinding) error {
	switch {
	case kb.Action != "" && kb.Sh != "":
		return errors.New("action and sh are mutually exclusive")
	case kb.Action == "" && kb.Sh == "":
		return errors.New("one of action or sh is required")
	case kb.Action != "" && kb.Action != ActionRepublish:
		return fmt.Errorf("unknown action %q", kb.Action)
	case kb.Sh != "":
		if _, err := tmpl.Parse(kb.Sh); err != nil {
			return fmt.Errorf("invalid sh template: %w", err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errRequired
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// ActivityDir returns the directory holding the activity journal.
func (c *Config) ActivityDir() string {
	return filepath.Join(c.DataDir, "activity")
}

// IdentitiesFile returns the path to the client identities JSON file.
func (c *Config) IdentitiesFile() string {
	return filepath.Join(c.DataDir, "identities.json")
}
