// Package config defines engine configuration structures and loading hooks.
//
// Conventions:
// - Provide New() defaults and Load(ctx) layering file and env on top.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains engine configuration: the algorithm constants consumed
// by the rating and equilibrium components.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// HistoryLimit caps retained period snapshots per algorithm.
	HistoryLimit int `koanf:"history_limit"`

	// UpdateParallelism bounds how many rating algorithms update
	// concurrently per period. Zero runs all of them at once.
	UpdateParallelism int `koanf:"update_parallelism"`

	// Elo constants.
	EloKFactor float64 `koanf:"elo_k_factor"`
	EloInitial float64 `koanf:"elo_initial"`

	// Glicko-1 constants.
	GlickoInitialRating       float64 `koanf:"glicko_initial_rating"`
	GlickoInitialDeviation    float64 `koanf:"glicko_initial_deviation"`
	GlickoUncertaintyIncrease float64 `koanf:"glicko_uncertainty_increase"`
	GlickoDeviationFloor      float64 `koanf:"glicko_deviation_floor"`

	// Glicko-2 constants.
	Glicko2Tau               float64 `koanf:"glicko2_tau"`
	Glicko2VolatilityFloor   float64 `koanf:"glicko2_volatility_floor"`
	Glicko2InitialRating     float64 `koanf:"glicko2_initial_rating"`
	Glicko2InitialDeviation  float64 `koanf:"glicko2_initial_deviation"`
	Glicko2InitialVolatility float64 `koanf:"glicko2_initial_volatility"`

	// TrueSkill constants.
	TrueSkillInitialMu    float64 `koanf:"trueskill_initial_mu"`
	TrueSkillInitialSigma float64 `koanf:"trueskill_initial_sigma"`
	TrueSkillBeta         float64 `koanf:"trueskill_beta"`
	TrueSkillDynamics     float64 `koanf:"trueskill_dynamics"`
	TrueSkillDrawProb     float64 `koanf:"trueskill_draw_probability"`

	// BayesElo / Bradley-Terry MM solver bounds.
	BayesEloTolerance  float64 `koanf:"bayeselo_tolerance"`
	BayesEloIterations int     `koanf:"bayeselo_iterations"`
	BayesEloDrawPrior  float64 `koanf:"bayeselo_draw_prior"`

	// Equilibrium solver bounds.
	NashIterations int     `koanf:"nash_iterations"`
	NashTolerance  float64 `koanf:"nash_tolerance"`
	NashRestarts   int     `koanf:"nash_restarts"`
	AlphaRankAlpha float64 `koanf:"alpharank_alpha"`
	AlphaRankPop   int     `koanf:"alpharank_population_size"`
	AlphaRankMut   float64 `koanf:"alpharank_mutation"`
}

// New creates a Config holding the engine defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		HistoryLimit:      64,
		UpdateParallelism: 0,

		EloKFactor: 20,
		EloInitial: 1500,

		GlickoInitialRating:       1500,
		GlickoInitialDeviation:    350,
		GlickoUncertaintyIncrease: 34.6,
		GlickoDeviationFloor:      30,

		Glicko2Tau:               0.5,
		Glicko2VolatilityFloor:   1e-5,
		Glicko2InitialRating:     1500,
		Glicko2InitialDeviation:  350,
		Glicko2InitialVolatility: 0.06,

		TrueSkillInitialMu:    25,
		TrueSkillInitialSigma: 25.0 / 3,
		TrueSkillBeta:         25.0 / 6,
		TrueSkillDynamics:     1.0 / 12,
		TrueSkillDrawProb:     0.1,

		BayesEloTolerance:  1e-5,
		BayesEloIterations: 10000,
		BayesEloDrawPrior:  2.0,

		NashIterations: 100_000,
		NashTolerance:  1e-3,
		NashRestarts:   8,
		AlphaRankAlpha: 10,
		AlphaRankPop:   50,
		AlphaRankMut:   0,
	}
}
