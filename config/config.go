package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// GridConfig controls how grid controllers are discovered
type GridConfig struct {
	SerialOSC       bool   `json:"serialosc"`
	SerialOSCHost   string `json:"serialoscHost,omitempty"`
	SerialOSCPort   int    `json:"serialoscPort,omitempty"`
	Launchpad       bool   `json:"launchpad"`
	StabilizeMillis int    `json:"stabilizeMillis,omitempty"`
	FlashMillis     int    `json:"flashMillis,omitempty"`
}

// OutputConfig defines the default MIDI output route
type OutputConfig struct {
	PortName string `json:"portName,omitempty"`
}

// ClockConfig stores transport defaults
type ClockConfig struct {
	Mode       string  `json:"mode,omitempty"` // internal | send | receive
	InPortName string  `json:"inPortName,omitempty"`
	BPM        int     `json:"bpm,omitempty"`
	Swing      float64 `json:"swing,omitempty"`
}

// SequencerConfig stores the track layout
type SequencerConfig struct {
	Tracks int `json:"tracks,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Grids     GridConfig      `json:"grids"`
	Output    OutputConfig    `json:"output"`
	Clock     ClockConfig     `json:"clock"`
	Sequencer SequencerConfig `json:"sequencer"`
	Debug     bool            `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Grids: GridConfig{
			SerialOSC:       true,
			SerialOSCHost:   "127.0.0.1",
			SerialOSCPort:   12002,
			Launchpad:       true,
			StabilizeMillis: 500,
			FlashMillis:     1000,
		},
		Output: OutputConfig{
			PortName: "Multinome Out",
		},
		Clock: ClockConfig{
			Mode: "internal",
			BPM:  120,
		},
		Sequencer: SequencerConfig{
			Tracks: 6,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "multinome"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file. Missing fields keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Grids.SerialOSCHost == "" {
		c.Grids.SerialOSCHost = def.Grids.SerialOSCHost
	}
	if c.Grids.SerialOSCPort <= 0 {
		c.Grids.SerialOSCPort = def.Grids.SerialOSCPort
	}
	if c.Output.PortName == "" {
		c.Output.PortName = def.Output.PortName
	}
	if c.Clock.Mode == "" {
		c.Clock.Mode = def.Clock.Mode
	}
	if c.Clock.BPM == 0 {
		c.Clock.BPM = def.Clock.BPM
	}
	if c.Sequencer.Tracks <= 0 {
		c.Sequencer.Tracks = def.Sequencer.Tracks
	}
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// StabilizeDelay is the pause between a grid reporting its size and the LED self-test
func (g GridConfig) StabilizeDelay() time.Duration {
	return time.Duration(g.StabilizeMillis) * time.Millisecond
}

// FlashDuration is how long the self-test keeps every LED lit
func (g GridConfig) FlashDuration() time.Duration {
	return time.Duration(g.FlashMillis) * time.Millisecond
}
