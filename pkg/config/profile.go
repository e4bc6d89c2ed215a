// Package config loads engine profiles: YAML documents pinning the seed
// policy, structural size bounds, worker count and trace output settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SizeBounds is the inclusive structural size bound for collections and maps
// when no attribute narrows it.
type SizeBounds struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// ArchiveConfig controls optional upload of finished trace files.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Bucket   string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// Profile is one named engine configuration.
type Profile struct {
	Name       string        `yaml:"name" json:"name"`
	Seed       *uint64       `yaml:"seed,omitempty" json:"seed,omitempty"`
	SizeBounds SizeBounds    `yaml:"size_bounds" json:"size_bounds"`
	Workers    int           `yaml:"workers" json:"workers"`
	Verbose    bool          `yaml:"verbose" json:"verbose"`
	TraceDir   string        `yaml:"trace_dir" json:"trace_dir"`
	Archive    ArchiveConfig `yaml:"archive" json:"archive"`
}

// DefaultProfile returns the defaults used when no profile is supplied.
func DefaultProfile() *Profile {
	return &Profile{
		Name:       "default",
		SizeBounds: SizeBounds{Min: 0, Max: 10},
		Workers:    4,
		TraceDir:   "kontrakt-trace",
	}
}

// LoadProfile reads and validates a profile file, applying defaults for
// omitted settings.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile: %w", err)
	}

	p := DefaultProfile()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("config: parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces structural validity.
func (p *Profile) Validate() error {
	if p.SizeBounds.Min < 0 {
		return fmt.Errorf("config: size_bounds.min must be non-negative, got %d", p.SizeBounds.Min)
	}
	if p.SizeBounds.Max < p.SizeBounds.Min {
		return fmt.Errorf("config: size_bounds.max %d below min %d", p.SizeBounds.Max, p.SizeBounds.Min)
	}
	if p.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", p.Workers)
	}
	if p.Archive.Enabled && p.Archive.Bucket == "" {
		return fmt.Errorf("config: archive enabled without bucket")
	}
	return nil
}
