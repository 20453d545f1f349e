package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/perch/internal/client"
	"github.com/hay-kot/perch/internal/core/config"
	"github.com/hay-kot/perch/internal/core/messaging"
	"github.com/hay-kot/perch/internal/core/validate"
	"github.com/hay-kot/perch/internal/store/jsonfile"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// ServerURL overrides client.url from the config file
	ServerURL string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "perch", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "perch")
}

// Client returns a client for the configured server.
func (f *Flags) Client() (*client.Client, error) {
	cfg := f.Config.Client

	url := cfg.URL
	if f.ServerURL != "" {
		url = f.ServerURL
	}

	return client.New(url,
		client.WithRetry(cfg.RetryDelay, cfg.MaxRetryDelay),
		client.WithLogger(log.With().Str("component", "client").Logger()),
	)
}

// ResolveClientID picks the client ID a polling command uses. An explicit
// ID wins; otherwise the named identity (or client.identity from the config)
// is resolved, creating it on first use.
func (f *Flags) ResolveClientID(ctx context.Context, identity, explicit string) (string, error) {
	if explicit != "" {
		if err := validate.ClientID(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	if identity == "" {
		identity = f.Config.Client.Identity
	}

	ident, err := f.IdentityResolver().Resolve(ctx, identity)
	if err != nil {
		return "", err
	}
	return ident.ClientID, nil
}

// IdentityResolver returns a resolver backed by the identities file.
func (f *Flags) IdentityResolver() *messaging.IdentityResolver {
	return messaging.NewIdentityResolver(f.IdentityStore())
}

// IdentityStore returns the identities file store.
func (f *Flags) IdentityStore() *jsonfile.IdentityStore {
	return jsonfile.NewIdentityStore(f.Config.IdentitiesFile())
}

// ActivityStore returns the activity journal store.
func (f *Flags) ActivityStore() *jsonfile.ActivityStore {
	return jsonfile.NewActivityStore(f.Config.ActivityDir()).
		WithMaxActivities(f.Config.Activity.MaxEntries)
}
