package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/refcheck/pkg/errors"
	"github.com/matzehuels/refcheck/pkg/trust"
)

// Config is the on-disk configuration. Flags set on the command line take
// precedence over every field except SearchPaths, which are appended.
type Config struct {
	Sandbox     string     `toml:"sandbox"`
	Timeout     duration   `toml:"timeout"`
	SearchPaths []string   `toml:"search_paths"`
	Trust       trust.File `toml:"trust"`
}

// duration decodes TOML strings such as "90s" or "5m".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// loadConfig reads path. Unknown keys are rejected so that typos do not
// silently change behavior.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.New(errors.ErrCodeInvalidConfig, "config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if cfg.Sandbox != "" {
		if _, err := parseSandboxKind(cfg.Sandbox); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "config %s", path)
		}
	}
	if cfg.Timeout < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "config %s: negative timeout", path)
	}
	return &cfg, nil
}

// trustTable builds the effective trust table.
func (c *Config) trustTable() (*trust.Table, error) {
	if c == nil {
		return trust.Default(), nil
	}
	t, err := c.Trust.Table()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "trust rules")
	}
	return t, nil
}

// defaultConfigPath returns the XDG config location
// (~/.config/refcheck/config.toml), or "" when no home can be determined.
func defaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName, "config.toml")
}

// resolveConfig loads an explicit path, or the default path when it exists.
// With neither, it returns nil.
func resolveConfig(explicit string) (*Config, error) {
	if explicit != "" {
		return loadConfig(explicit)
	}
	path := defaultConfigPath()
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	return loadConfig(path)
}
