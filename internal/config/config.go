// Package config loads ravend's optional YAML configuration file, following
// the same load-or-default pattern the reference daemon uses for its
// project.yaml registrations.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults, used whenever the config file is absent or a field is zero.
const (
	DefaultScrollbackBytes = 64 * 1024 // B, spec §3
	DefaultBroadcastDepth  = 256       // Q, spec §3
	DefaultShell           = "/bin/zsh"
)

// Config holds daemon-wide tunables. All fields are optional; zero values
// fall back to the package defaults.
type Config struct {
	// SocketPath overrides the discovery chain in spec §6 outright. Normally
	// left empty so RAVEN_SOCKET_PATH / the runtime dir / /tmp take over.
	SocketPath string `yaml:"socket_path"`

	// Shell is used when $SHELL is unset.
	Shell string `yaml:"shell"`

	// ScrollbackBytes is the per-session scroll-back capacity B.
	ScrollbackBytes int `yaml:"scrollback_bytes"`

	// BroadcastDepth is the per-subscriber queue capacity Q.
	BroadcastDepth int `yaml:"broadcast_depth"`

	// DebugWebsocket enables the loopback-only debug mirror (SPEC_FULL.md).
	DebugWebsocket bool `yaml:"debug_websocket"`

	// DebugWebsocketAddr is the listen address for the debug mirror.
	DebugWebsocketAddr string `yaml:"debug_websocket_addr"`
}

// Load reads path if it exists and merges it over the defaults. A missing
// file is not an error — Load returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Shell:              DefaultShell,
		ScrollbackBytes:    DefaultScrollbackBytes,
		BroadcastDepth:     DefaultBroadcastDepth,
		DebugWebsocketAddr: "127.0.0.1:7417",
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.ScrollbackBytes <= 0 {
		cfg.ScrollbackBytes = DefaultScrollbackBytes
	}
	if cfg.BroadcastDepth <= 0 {
		cfg.BroadcastDepth = DefaultBroadcastDepth
	}
	if cfg.DebugWebsocketAddr == "" {
		cfg.DebugWebsocketAddr = "127.0.0.1:7417"
	}

	return cfg, nil
}

// ResolvePath implements the lookup order from spec §6 for where to find the
// config file itself: $RAVEN_CONFIG, else <runtime-dir>/raven.yaml.
func ResolvePath(runtimeDir string) string {
	if p := os.Getenv("RAVEN_CONFIG"); p != "" {
		return p
	}
	if runtimeDir == "" {
		return ""
	}
	return runtimeDir + "/raven.yaml"
}
