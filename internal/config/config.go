package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/keyring"
	"github.com/julianstephens/habitsync/internal/storage/postgres"
)

// Config is the on-disk habitsync configuration.
type Config struct {
	UserID       string        `yaml:"user_id"`
	LocalPath    string        `yaml:"local_path"`
	Remote       string        `yaml:"remote,omitempty"`
	SyncInterval time.Duration `yaml:"sync_interval"`
	Timezone     string        `yaml:"timezone"`
	Debug        bool          `yaml:"debug"`
}

func Default() Config {
	return Config{
		UserID:       constants.DefaultUserID,
		LocalPath:    constants.DefaultLocalPath,
		SyncInterval: constants.DefaultSyncInterval,
		Timezone:     constants.DefaultTimezone,
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandPath(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// HABITSYNC_REMOTE is not applied here; ResolveRemote gives it precedence.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(constants.EnvUserID); v != "" {
		c.UserID = v
	}
	if v := os.Getenv(constants.EnvLocalPath); v != "" {
		c.LocalPath = v
	}
	if v := os.Getenv(constants.EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", constants.EnvDebug, v, err)
		}
		c.Debug = debug
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user_id cannot be empty")
	}
	if strings.TrimSpace(c.LocalPath) == "" {
		return errors.New("local_path cannot be empty")
	}
	if c.SyncInterval < constants.MinSyncInterval {
		return fmt.Errorf("sync_interval must be at least %s, got %s", constants.MinSyncInterval, c.SyncInterval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Remote != "" {
		if _, err := postgres.ValidateConnString(c.Remote); err != nil {
			return fmt.Errorf("remote: %w", err)
		}
	}
	return nil
}

// Location resolves Timezone. "Local" and empty mean the system zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == constants.DefaultTimezone {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Dir returns the directory holding the config file at path.
func Dir(path string) string {
	return filepath.Dir(ExpandPath(path))
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Source names where a remote connection string came from
type Source string

const (
	SourceNone    Source = "none"
	SourceEnv     Source = "environment"
	SourceKeyring Source = "keyring"
	SourceConfig  Source = "config"
)

// SecretStore is the subset of keyring.Credentials used for lookups.
type SecretStore interface {
	Get() (string, error)
}

// ResolveRemote picks the remote connection string from the environment,
// then the keyring, then the config file. Environment and config values
// must not embed a password; the keyring is trusted to hold one.
func (c Config) ResolveRemote(secrets SecretStore) (string, Source, error) {
	if v := strings.TrimSpace(os.Getenv(constants.EnvRemote)); v != "" {
		if _, err := postgres.ValidateConnString(v); err != nil {
			return "", SourceEnv, fmt.Errorf("%s: %w", constants.EnvRemote, err)
		}
		return v, SourceEnv, nil
	}

	if secrets != nil {
		v, err := secrets.Get()
		switch {
		case err == nil && strings.TrimSpace(v) != "":
			return v, SourceKeyring, nil
		case err != nil && !errors.Is(err, keyring.ErrNotFound) && !errors.Is(err, keyring.ErrKeyringUnavailable):
			return "", SourceKeyring, err
		}
	}

	if c.Remote != "" {
		return c.Remote, SourceConfig, nil
	}
	return "", SourceNone, nil
}
