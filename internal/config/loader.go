package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if POPRANK_CONFIG is set
//  3. env (prefix POPRANK_)
func Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := New()

	k := koanf.New(".")

	if path := os.Getenv("POPRANK_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: POPRANK_GLICKO2_TAU, POPRANK_NASH_RESTARTS, ...
	// Keys keep their underscores to match the koanf tags on the struct.
	envProvider := env.Provider("POPRANK_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "poprank_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects values that would break solver invariants.
func (c *Config) validate() error {
	switch {
	case c.Glicko2Tau <= 0:
		return fmt.Errorf("%w: glicko2_tau must be positive", ErrInvalidConfig)
	case c.Glicko2VolatilityFloor <= 0:
		return fmt.Errorf("%w: glicko2_volatility_floor must be positive", ErrInvalidConfig)
	case c.TrueSkillBeta <= 0:
		return fmt.Errorf("%w: trueskill_beta must be positive", ErrInvalidConfig)
	case c.TrueSkillDrawProb <= 0 || c.TrueSkillDrawProb >= 1:
		return fmt.Errorf("%w: trueskill_draw_probability must be in (0,1)", ErrInvalidConfig)
	case c.BayesEloIterations <= 0 || c.NashIterations <= 0:
		return fmt.Errorf("%w: iteration caps must be positive", ErrInvalidConfig)
	case c.BayesEloTolerance <= 0 || c.NashTolerance <= 0:
		return fmt.Errorf("%w: tolerances must be positive", ErrInvalidConfig)
	case c.AlphaRankAlpha <= 0:
		return fmt.Errorf("%w: alpharank_alpha must be positive", ErrInvalidConfig)
	case c.AlphaRankPop <= 1:
		return fmt.Errorf("%w: alpharank_population_size must exceed 1", ErrInvalidConfig)
	}
	return nil
}
