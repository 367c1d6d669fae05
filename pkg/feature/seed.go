package feature

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML representation of initial flag values.
type Seed struct {
	Defaults map[string]bool            `yaml:"defaults"`
	Tenants  map[string]map[string]bool `yaml:"tenants"`
}

// LoadSeed decodes a seed document.
func LoadSeed(r io.Reader) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	for tenant := range s.Tenants {
		if tenant == "" {
			return nil, fmt.Errorf("%w: empty tenant id", ErrInvalidSeed)
		}
	}
	return &s, nil
}

// LoadSeedFile reads a seed document from path.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// Apply writes every seeded value into p.
func (s *Seed) Apply(ctx context.Context, p Provider) error {
	for flag, enabled := range s.Defaults {
		if err := p.SetFlag(ctx, GlobalTenant, flag, enabled); err != nil {
			return fmt.Errorf("seed default %s: %w", flag, err)
		}
	}
	for tenant, flags := range s.Tenants {
		for flag, enabled := range flags {
			if err := p.SetFlag(ctx, tenant, flag, enabled); err != nil {
				return fmt.Errorf("seed %s/%s: %w", tenant, flag, err)
			}
		}
	}
	return nil
}
