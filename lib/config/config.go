// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
)

// EnvironmentVariable names the environment variable Load reads the
// config file path from.
const EnvironmentVariable = "BUREAU_INTEGRATIONS_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// Default integration manager endpoints, used when neither the user's
// account data nor the homeserver's well-known names a manager.
const (
	DefaultManagerAPIURL = schema.DefaultIntegrationManagerAPIURL
	DefaultManagerUIURL  = schema.DefaultIntegrationManagerUIURL
)

// Config is the configuration for bureau-integrations.
type Config struct {
	// Environment identifies the deployment type (development, production).
	Environment Environment `yaml:"environment"`

	// HomeserverURL is the base URL of the Matrix homeserver.
	HomeserverURL string `yaml:"homeserver_url"`

	// WellKnownURL is the base URL serving /.well-known/matrix/client.
	// Empty means HomeserverURL.
	WellKnownURL string `yaml:"well_known_url"`

	// UserID is the Matrix user whose account data is managed.
	UserID string `yaml:"user_id"`

	// AccessTokenFile is the path of a file containing the user's
	// access token. The token itself never appears in the config.
	AccessTokenFile string `yaml:"access_token_file"`

	// DefaultManager is the integration manager used when no other
	// source names one.
	DefaultManager ManagerConfig `yaml:"default_manager"`

	// Cache configures the on-disk registry snapshot.
	Cache CacheConfig `yaml:"cache"`

	// WellKnownRefresh is how often the watch command re-fetches the
	// homeserver's well-known document. Zero disables the refresh.
	WellKnownRefresh Duration `yaml:"well_known_refresh"`

	// Sync configures the /sync long-poll loop.
	Sync SyncConfig `yaml:"sync"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	HomeserverURL    string         `yaml:"homeserver_url,omitempty"`
	WellKnownURL     string         `yaml:"well_known_url,omitempty"`
	DefaultManager   *ManagerConfig `yaml:"default_manager,omitempty"`
	Cache            *CacheConfig   `yaml:"cache,omitempty"`
	WellKnownRefresh *Duration      `yaml:"well_known_refresh,omitempty"`
	Sync             *SyncConfig    `yaml:"sync,omitempty"`
}

// ManagerConfig names an integration manager's endpoints.
type ManagerConfig struct {
	// APIURL is the manager's REST API base.
	APIURL string `yaml:"api_url"`
	// UIURL is the manager's user interface. Empty means APIURL.
	UIURL string `yaml:"ui_url"`
}

// CacheConfig configures the on-disk snapshot.
type CacheConfig struct {
	// Path is the snapshot file. Empty disables the snapshot.
	Path string `yaml:"path"`
}

// SyncConfig configures the /sync loop.
type SyncConfig struct {
	// Timeout is the server-side long-poll timeout.
	// Default: 30s
	Timeout Duration `yaml:"timeout"`
}

// Duration is a time.Duration that unmarshals from YAML duration
// strings ("30s", "1h").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist to give every optional field a sensible value, not as a
// fallback: the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		DefaultManager: ManagerConfig{
			APIURL: DefaultManagerAPIURL,
			UIURL:  DefaultManagerUIURL,
		},
		Cache: CacheConfig{
			Path: filepath.Join("${HOME}", ".cache", "bureau-integrations", "registry.snapshot"),
		},
		WellKnownRefresh: Duration(time.Hour),
		Sync: SyncConfig{
			Timeout: Duration(30 * time.Second),
		},
	}
}

// Load loads configuration from the BUREAU_INTEGRATIONS_CONFIG
// environment variable.
//
// There are no fallbacks: if the variable is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.HomeserverURL != "" {
		c.HomeserverURL = overrides.HomeserverURL
	}
	if overrides.WellKnownURL != "" {
		c.WellKnownURL = overrides.WellKnownURL
	}
	if overrides.DefaultManager != nil {
		if overrides.DefaultManager.APIURL != "" {
			c.DefaultManager.APIURL = overrides.DefaultManager.APIURL
		}
		if overrides.DefaultManager.UIURL != "" {
			c.DefaultManager.UIURL = overrides.DefaultManager.UIURL
		}
	}
	if overrides.Cache != nil && overrides.Cache.Path != "" {
		c.Cache.Path = overrides.Cache.Path
	}
	// A zero refresh is a meaningful override (disable), so any
	// explicit value applies.
	if overrides.WellKnownRefresh != nil {
		c.WellKnownRefresh = *overrides.WellKnownRefresh
	}
	if overrides.Sync != nil && overrides.Sync.Timeout != 0 {
		c.Sync.Timeout = overrides.Sync.Timeout
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.AccessTokenFile = expandVars(c.AccessTokenFile, vars)
	c.Cache.Path = expandVars(c.Cache.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.HomeserverURL == "" {
		errs = append(errs, fmt.Errorf("homeserver_url is required"))
	} else if err := validateURL(c.HomeserverURL); err != nil {
		errs = append(errs, fmt.Errorf("homeserver_url: %w", err))
	}

	if c.WellKnownURL != "" {
		if err := validateURL(c.WellKnownURL); err != nil {
			errs = append(errs, fmt.Errorf("well_known_url: %w", err))
		}
	}

	if c.UserID == "" {
		errs = append(errs, fmt.Errorf("user_id is required"))
	} else if _, err := ref.ParseUserID(c.UserID); err != nil {
		errs = append(errs, fmt.Errorf("user_id: %w", err))
	}

	if c.AccessTokenFile == "" {
		errs = append(errs, fmt.Errorf("access_token_file is required"))
	}

	if c.DefaultManager.APIURL == "" {
		errs = append(errs, fmt.Errorf("default_manager.api_url is required"))
	} else if err := validateURL(c.DefaultManager.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("default_manager.api_url: %w", err))
	}

	if c.WellKnownRefresh < 0 {
		errs = append(errs, fmt.Errorf("well_known_refresh must not be negative"))
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https URL", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// ParsedUserID returns UserID as a validated Matrix user ID. Call
// after Validate.
func (c *Config) ParsedUserID() (ref.UserID, error) {
	return ref.ParseUserID(c.UserID)
}

// DefaultManagerUI returns the default manager's UI URL, falling back
// to its API URL.
func (c *Config) DefaultManagerUI() string {
	if c.DefaultManager.UIURL != "" {
		return c.DefaultManager.UIURL
	}
	return c.DefaultManager.APIURL
}
