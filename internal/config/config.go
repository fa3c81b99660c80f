// Package config loads the shell and daemon run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultSocketPath is the compiled-in daemon socket location.
	DefaultSocketPath = "/tmp/confd.socket"

	// DefaultLockPath serializes independent shells against one
	// daemon unless lockless mode is chosen.
	DefaultLockPath = "/tmp/confsh.lock"

	EnvSchemePath = "CONFSH_PATH"
	EnvView       = "CONFSH_VIEW"
	EnvViewID     = "CONFSH_VIEWID"
)

// Encoding selects how input bytes are interpreted.
type Encoding string

const (
	EncodingAuto Encoding = "auto"
	EncodingUTF8 Encoding = "utf8"
	Encoding8Bit Encoding = "8bit"
)

// ShellConfig is the confsh client configuration.
type ShellConfig struct {
	Socket     string   `toml:"socket"`
	SchemePath string   `toml:"scheme_path"`
	View       string   `toml:"view"`
	ViewID     string   `toml:"viewid"`
	LockPath   string   `toml:"lock_path"`
	Token      string   `toml:"token"`
	Encoding   Encoding `toml:"encoding"`
}

// DaemonConfig is the confd daemon configuration.
type DaemonConfig struct {
	Socket          string `toml:"socket"`
	Token           string `toml:"token"`
	RequireSameUser bool   `toml:"require_same_user"`
}

func DefaultShellConfig() ShellConfig {
	return ShellConfig{
		Socket:     DefaultSocketPath,
		SchemePath: os.Getenv(EnvSchemePath),
		View:       os.Getenv(EnvView),
		ViewID:     os.Getenv(EnvViewID),
		LockPath:   DefaultLockPath,
		Encoding:   EncodingAuto,
	}
}

func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Socket:          DefaultSocketPath,
		RequireSameUser: true,
	}
}

// LoadShellConfig reads path over the defaults. An empty path returns
// the defaults untouched.
func LoadShellConfig(path string) (ShellConfig, error) {
	cfg := DefaultShellConfig()
	if path == "" {
		return cfg, nil
	}
	if err := loadToml(path, &cfg); err != nil {
		return ShellConfig{}, err
	}
	if err := ValidateShellConfig(cfg); err != nil {
		return ShellConfig{}, err
	}
	return cfg, nil
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	if path == "" {
		return cfg, nil
	}
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateShellConfig(cfg ShellConfig) error {
	if strings.TrimSpace(cfg.Socket) == "" {
		return errors.New("shell config missing socket path")
	}
	switch cfg.Encoding {
	case EncodingAuto, EncodingUTF8, Encoding8Bit:
	default:
		return fmt.Errorf("shell config invalid encoding %q", cfg.Encoding)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Socket) == "" {
		return errors.New("daemon config missing socket path")
	}
	return nil
}
