package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "SPECTRE_"
	envConfigPath = "SPECTRE_CONFIG"
	maxPolyOrder  = 4
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SPECTRE_CONFIG is set
//  3. env (prefix SPECTRE_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SPECTRE_BIN_WIDTH -> bin_width (flat keys, underscores preserved).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(envPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that the analysis depends on.
func (c *Config) Validate() error {
	switch {
	case c.NChannels < 1:
		return fmt.Errorf("%w: n_channels must be positive, got %d", ErrInvalidConfig, c.NChannels)
	case !(c.BinWidth > 0):
		return fmt.Errorf("%w: bin_width must be positive, got %g", ErrInvalidConfig, c.BinWidth)
	case c.MaxOrder < 0 || c.MaxOrder > maxPolyOrder:
		return fmt.Errorf("%w: max_order must be in [0,%d], got %d", ErrInvalidConfig, maxPolyOrder, c.MaxOrder)
	case !(c.Significance > 0 && c.Significance < 1):
		return fmt.Errorf("%w: significance must be in (0,1), got %g", ErrInvalidConfig, c.Significance)
	case c.DeadTimeNormal < 0 || c.DeadTimeOverflow < 0:
		return fmt.Errorf("%w: dead times must not be negative", ErrInvalidConfig)
	case !(c.LightCurveBin > 0):
		return fmt.Errorf("%w: light_curve_bin must be positive, got %g", ErrInvalidConfig, c.LightCurveBin)
	}

	order := strings.ToLower(strings.TrimSpace(c.PolyOrder))
	if order != "auto" && order != "" {
		n, err := strconv.Atoi(order)
		if err != nil || n < 0 || n > maxPolyOrder {
			return fmt.Errorf("%w: poly_order must be auto or 0..%d, got %q", ErrInvalidConfig, maxPolyOrder, c.PolyOrder)
		}
	}
	return nil
}
