// Package config loads the daemon configuration from a yaml file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/Norgate-AV/passthru/internal/hook"
	"github.com/Norgate-AV/passthru/internal/inject"
	"github.com/Norgate-AV/passthru/internal/remote"
	"github.com/Norgate-AV/passthru/internal/timeouts"
)

// DefaultCompanionPath is resolved relative to the working directory
const DefaultCompanionPath = "companion/passthru_companion.dll"

const (
	maxConfigFileBytes int64 = 1 << 20
	maxQueueCapacity         = 4096
	maxChildDepth            = 16
)

// Config is the on-disk daemon configuration
type Config struct {
	CompanionPath string       `yaml:"companion_path"`
	PipeName      string       `yaml:"pipe_name,omitempty"`
	Hook          HookConfig   `yaml:"hook"`
	Remote        RemoteConfig `yaml:"remote"`
	Target        TargetConfig `yaml:"target"`
}

// HookConfig configures the mouse event pipeline
type HookConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
}

// RemoteConfig configures calls into foreign processes
type RemoteConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Resolver string        `yaml:"resolver"`
}

// TargetConfig configures which window receives the bridge
type TargetConfig struct {
	ChildDepth int `yaml:"child_depth"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() Config {
	return Config{
		CompanionPath: DefaultCompanionPath,
		Hook: HookConfig{
			QueueCapacity: hook.DefaultQueueCapacity,
		},
		Remote: RemoteConfig{
			Timeout:  timeouts.RemoteThreadTimeout,
			Resolver: remote.ResolverExport,
		},
		Target: TargetConfig{
			ChildDepth: inject.DefaultChildDepth,
		},
	}
}

// DefaultPath resolves the config file path under LOCALAPPDATA, then
// APPDATA, then ~/.config.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}

	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(base, "passthru", "config.yaml")
}

// Load reads the config file at path. A missing or empty file yields the
// defaults. Fields absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if strings.TrimSpace(string(raw)) == "" {
		return cfg, nil
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks every field against its allowed range
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.CompanionPath) == "" {
		errs = append(errs, errors.New("companion_path must not be empty"))
	}

	if c.Hook.QueueCapacity < 1 || c.Hook.QueueCapacity > maxQueueCapacity {
		errs = append(errs, fmt.Errorf("hook.queue_capacity must be between 1 and %d, got %d", maxQueueCapacity, c.Hook.QueueCapacity))
	}

	if c.Remote.Timeout < timeouts.MinRemoteThreadTimeout {
		errs = append(errs, fmt.Errorf("remote.timeout must be at least %s, got %s", timeouts.MinRemoteThreadTimeout, c.Remote.Timeout))
	}

	switch c.Remote.Resolver {
	case remote.ResolverExport, remote.ResolverLocal:
	default:
		errs = append(errs, fmt.Errorf("remote.resolver must be %q or %q, got %q", remote.ResolverExport, remote.ResolverLocal, c.Remote.Resolver))
	}

	if c.Target.ChildDepth < 0 || c.Target.ChildDepth > maxChildDepth {
		errs = append(errs, fmt.Errorf("target.child_depth must be between 0 and %d, got %d", maxChildDepth, c.Target.ChildDepth))
	}

	return errors.Join(errs...)
}

// ResolveCompanionPath returns CompanionPath as an absolute path. Relative
// paths are taken from the working directory.
func (c *Config) ResolveCompanionPath() (string, error) {
	abs, err := filepath.Abs(c.CompanionPath)
	if err != nil {
		return "", fmt.Errorf("resolve companion path: %w", err)
	}

	return abs, nil
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}

	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}

	return raw, nil
}
