package config

import "time"

// Preset bundles the crawl-shape settings that tend to move together.
// The three named presets have shipped with the project since the first
// release and are kept value-compatible.
type Preset struct {
	// MaxDepth is the citation tree depth bound.
	MaxDepth int

	// MaxPapersPerLevel is the per-node fan-out cap.
	MaxPapersPerLevel int

	// DelayMin and DelayMax bound the base request delay.
	DelayMin time.Duration
	DelayMax time.Duration
}

// presets maps preset names to their settings.
//
// demo is a deep exploratory crawl with relaxed pacing, production widens
// the fan-out and slows down further for long unattended runs, and quick
// is for smoke-testing a start URL.
var presets = map[string]Preset{
	"demo": {
		MaxDepth:          10,
		MaxPapersPerLevel: 30,
		DelayMin:          1 * time.Second,
		DelayMax:          2 * time.Second,
	},
	"production": {
		MaxDepth:          30,
		MaxPapersPerLevel: 50,
		DelayMin:          2 * time.Second,
		DelayMax:          4 * time.Second,
	},
	"quick": {
		MaxDepth:          10,
		MaxPapersPerLevel: 20,
		DelayMin:          500 * time.Millisecond,
		DelayMax:          1 * time.Second,
	},
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, ErrUnknownPreset
	}
	return p, nil
}

// ApplyPreset overwrites the crawl-shape settings with the named preset.
// Flag-level overrides should be applied after this call.
func (c *Config) ApplyPreset(name string) error {
	p, err := LookupPreset(name)
	if err != nil {
		return err
	}
	c.MaxDepth = p.MaxDepth
	c.MaxPapersPerLevel = p.MaxPapersPerLevel
	c.DelayMin = p.DelayMin
	c.DelayMax = p.DelayMax
	return nil
}
