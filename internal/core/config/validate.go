package config

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"slices"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks file access and that the listen address
// parses.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	if err := c.Validate(); err != nil {
		var fieldErrs criterio.FieldErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = errs.Append(fe.Field, fe.Err)
			}
		} else {
			errs = errs.Append("", err)
		}
	}

	errs = c.validateFileAccess(errs, configPath)

	if c.Server.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			errs = errs.Append("server.addr", fmt.Errorf("invalid listen address: %w", err))
		}
	}

	return errs.ToError()
}

// validateFileAccess checks the config file and data directory.
func (c *Config) validateFileAccess(errs criterio.FieldErrorsBuilder, configPath string) criterio.FieldErrorsBuilder {
	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.IsDir() {
				errs = errs.Append("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("config_file", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil {
			if !info.IsDir() {
				errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("data_dir", fmt.Errorf("cannot access %s: %w", c.DataDir, err))
		}
	}

	return errs
}

// Warnings returns settings that are valid but probably not intended.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Broker.BufferTimeout >= c.Broker.RequestTimeout {
		warnings = append(warnings, ValidationWarning{
			Category: "Broker",
			Item:     "buffer_timeout",
			Message:  fmt.Sprintf("buffer window (%s) is not shorter than the request timeout (%s); every response waits for the full timeout", c.Broker.BufferTimeout, c.Broker.RequestTimeout),
		})
	}

	if c.Broker.MessageTimeout < c.Broker.BufferTimeout {
		warnings = append(warnings, ValidationWarning{
			Category: "Broker",
			Item:     "message_timeout",
			Message:  "messages expire faster than a single buffer window; late subscribers will rarely see them",
		})
	}

	if len(c.Server.AllowedChannels) == 0 && !isLoopback(c.Server.Addr) {
		warnings = append(warnings, ValidationWarning{
			Category: "Server",
			Item:     "allowed_channels",
			Message:  fmt.Sprintf("listening on %s with no channel restrictions", c.Server.Addr),
		})
	}

	if c.Activity.Enabled && c.Activity.MaxEntries < 100 {
		warnings = append(warnings, ValidationWarning{
			Category: "Activity",
			Item:     "max_entries",
			Message:  fmt.Sprintf("journal keeps only %d entries", c.Activity.MaxEntries),
		})
	}

	for _, k := range slices.Sorted(maps.Keys(c.Tail.Keybindings)) {
		if slices.Contains(reservedTailKeys, k) {
			warnings = append(warnings, ValidationWarning{
				Category: "Tail",
				Item:     k,
				Message:  fmt.Sprintf("key %q is used by the viewer and the binding will never fire", k),
			})
		}
	}

	return warnings
}

// reservedTailKeys are handled by the viewer before custom keybindings.
var reservedTailKeys = []string{"q", "ctrl+c", "/", "enter", "esc", "up", "down", "j", "k", "G", "g"}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
