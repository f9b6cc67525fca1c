package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".papertracer.yml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Duration wraps time.Duration so YAML values like "1s" or "2m30s"
// parse. yaml.v3 only decodes durations from raw integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// File represents the structure of the .papertracer.yml configuration
// file. Every field is optional; only non-zero values override the
// config built from defaults and flags.
type File struct {
	MaxDepth           int      `yaml:"maxDepth,omitempty"`
	MaxPapersPerLevel  int      `yaml:"maxPapersPerLevel,omitempty"`
	DelayMin           Duration `yaml:"delayMin,omitempty"`
	DelayMax           Duration `yaml:"delayMax,omitempty"`
	MaxRetries         int      `yaml:"maxRetries,omitempty"`
	SkipBlocks         *bool    `yaml:"skipBlocks,omitempty"`
	BrowserFallback    *bool    `yaml:"browserFallback,omitempty"`
	ManualMode         *bool    `yaml:"manualMode,omitempty"`
	Proxies            []string `yaml:"proxies,omitempty"`
	DataDir            string   `yaml:"dataDir,omitempty"`
	CheckpointEveryN   int      `yaml:"checkpointEveryN,omitempty"`
	CheckpointInterval Duration `yaml:"checkpointInterval,omitempty"`
	Format             string   `yaml:"format,omitempty"`
}

// LoadConfigFile loads configuration overrides from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .papertracer.yml in the current directory
// 3. Look for .papertracer.yml in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	// If explicit path is provided, use it
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	// Check current directory
	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	// Check home directory
	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}

// ApplyFile merges non-zero file values into the config. Proxies from
// the file are only used when none were given on the command line.
func (c *Config) ApplyFile(cf *File) {
	if cf == nil {
		return
	}
	if cf.MaxDepth != 0 {
		c.MaxDepth = cf.MaxDepth
	}
	if cf.MaxPapersPerLevel != 0 {
		c.MaxPapersPerLevel = cf.MaxPapersPerLevel
	}
	if cf.DelayMin != 0 {
		c.DelayMin = time.Duration(cf.DelayMin)
	}
	if cf.DelayMax != 0 {
		c.DelayMax = time.Duration(cf.DelayMax)
	}
	if cf.MaxRetries != 0 {
		c.MaxRetries = cf.MaxRetries
	}
	if cf.SkipBlocks != nil {
		c.SkipBlocks = *cf.SkipBlocks
	}
	if cf.BrowserFallback != nil {
		c.BrowserFallback = *cf.BrowserFallback
	}
	if cf.ManualMode != nil {
		c.ManualMode = *cf.ManualMode
	}
	if len(cf.Proxies) > 0 && len(c.Proxies) == 0 {
		c.Proxies = cf.Proxies
	}
	if cf.DataDir != "" {
		c.DataDir = cf.DataDir
	}
	if cf.CheckpointEveryN != 0 {
		c.CheckpointEveryN = cf.CheckpointEveryN
	}
	if cf.CheckpointInterval != 0 {
		c.CheckpointInterval = time.Duration(cf.CheckpointInterval)
	}
	if cf.Format != "" {
		c.Format = cf.Format
	}
}
