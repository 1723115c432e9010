package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

//go:embed default.toml
var defaultConfig []byte

// envPrefix is the prefix of environment variables that override
// configuration values. Double underscore separates nesting levels so
// keys containing underscores stay addressable, e.g.
// INCBAK_BACKUP__DST_FQDN=false.
const envPrefix = "INCBAK_"

// rawBytesProvider implements koanf.Provider for embedded bytes
type rawBytesProvider struct {
	bytes []byte
}

func (r *rawBytesProvider) ReadBytes() ([]byte, error) {
	return r.bytes, nil
}

func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("rawBytesProvider does not support Read()")
}

// Load builds the configuration from three layers: embedded defaults,
// then the user config file (incbak.toml in the XDG config dir, or an
// explicit path), then INCBAK_ environment variables.
func Load(userConfigPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := userConfigPath
	if path == "" {
		path = filepath.Join(xdg.ConfigHome, "incbak", "incbak.toml")
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if userConfigPath != "" {
		return nil, fmt.Errorf("config file not found: %s", userConfigPath)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}
