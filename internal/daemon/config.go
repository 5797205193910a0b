// Package daemon wires every runtime component into a bootable process
// and manages its bootstrap configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the bootstrap configuration read before any module or
// the Config Store exists: where to persist section blobs, how to
// reach the diagnostics server, and how the heartbeat monitor reacts to
// an unresponsive module. Tunables that modules themselves own (climate
// setpoint, sensor poll interval, ...) live in the Config Store's
// sections instead, not here.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Storage   StorageConfig   `toml:"storage"`
	Diag      DiagConfig      `toml:"diag"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this controller instance.
type NodeConfig struct {
	ID string `toml:"id"`
}

// StorageConfig controls where the Config Store persists section blobs.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// DiagConfig controls the diagnostics HTTP server.
type DiagConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// HeartbeatConfig controls the Heartbeat Monitor's recovery policy.
type HeartbeatConfig struct {
	Policy     string `toml:"policy"` // "warn", "restart", or "escalate"
	RestartCap int    `toml:"restart_cap"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := modespHome()
	return Config{
		Node: NodeConfig{
			ID: "modesp-001",
		},
		Storage: StorageConfig{
			Dir: filepath.Join(homeDir, "config"),
		},
		Diag: DiagConfig{
			ListenAddr: "0.0.0.0:8080",
		},
		Heartbeat: HeartbeatConfig{
			Policy:     "restart",
			RestartCap: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads config from $MODESP_HOME/config.toml, falling back
// to defaults when the file does not exist yet.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(modespHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to $MODESP_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(modespHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// modespHome returns the controller's data directory.
func modespHome() string {
	if env := os.Getenv("MODESP_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".modesp")
}

// ModespHome is the exported form of modespHome, for use by other
// packages.
func ModespHome() string {
	return modespHome()
}
