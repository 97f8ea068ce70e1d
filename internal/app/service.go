// Package service provides the engine facade: period submission across
// the configured rating algorithms, leaderboard reads, empirical game
// evaluation and ranking comparison.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/poprank/internal/adapters/repository"
	"github.com/okian/poprank/internal/config"
	"github.com/okian/poprank/internal/domain/dedupe"
	"github.com/okian/poprank/internal/domain/equilibrium"
	"github.com/okian/poprank/internal/domain/game"
	"github.com/okian/poprank/internal/domain/metric"
	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/rating"
	"github.com/okian/poprank/internal/domain/types"
	"github.com/okian/poprank/pkg/logger"
	"github.com/okian/poprank/pkg/metrics"
)

// Service wires the rating algorithms, the state store and the
// population-level solvers behind a single surface. A single Service
// tracks one population; every configured algorithm sees every accepted
// outcome.
type Service struct {
	store   repository.Store
	raters  map[types.Method]rating.Rater
	methods []types.Method
	builder *game.Builder
	solvers map[equilibrium.Method]equilibrium.Solver
	deduper dedupe.Deduper

	dedupeSize  int
	parallelism int

	logger  logger.Logger
	metrics *metrics.Manager
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore replaces the default in-memory rating state store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRater registers a rating algorithm. Registering a method twice
// replaces the earlier rater.
func WithRater(r rating.Rater) Option {
	return func(s *Service) {
		if r == nil {
			return
		}
		if _, exists := s.raters[r.Method()]; !exists {
			s.methods = append(s.methods, r.Method())
		}
		s.raters[r.Method()] = r
	}
}

// WithSolver registers an equilibrium solver. Registering a method twice
// replaces the earlier solver.
func WithSolver(sol equilibrium.Solver) Option {
	return func(s *Service) {
		if sol != nil {
			s.solvers[sol.Method()] = sol
		}
	}
}

// WithGameBuilder replaces the default empirical game builder.
func WithGameBuilder(b *game.Builder) Option {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithDedupeSize sets the size of the outcome deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithUpdateParallelism bounds how many rating algorithms update
// concurrently during a period submission. A non-positive bound runs all
// of them at once.
func WithUpdateParallelism(n int) Option {
	return func(s *Service) {
		s.parallelism = n
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(lg logger.Logger) Option {
	return func(s *Service) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// WithMetrics sets the metrics manager for the service.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New constructs a Service. Without options it tracks all six rating
// algorithms at their defaults and solves games with both equilibrium
// methods.
func New(opts ...Option) *Service {
	s := &Service{
		raters:     make(map[types.Method]rating.Rater),
		solvers:    make(map[equilibrium.Method]equilibrium.Solver),
		builder:    game.NewBuilder(),
		dedupeSize: 50_000,
		logger:     logger.Nop(),
		metrics:    metrics.New(metrics.WithEnabled(false)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemStore()
	}
	if len(s.raters) == 0 {
		for _, r := range []rating.Rater{
			rating.NewElo(),
			rating.NewWDL(),
			rating.NewGlicko(),
			rating.NewGlicko2(),
			rating.NewTrueSkill(),
			rating.NewBayesElo(),
		} {
			WithRater(r)(s)
		}
	}
	if len(s.solvers) == 0 {
		WithSolver(equilibrium.NewNashAverager())(s)
		WithSolver(equilibrium.NewAlphaRanker())(s)
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// FromConfig translates engine configuration into service options. Extra
// options are applied after the configured ones and win on conflict.
func FromConfig(cfg *config.Config, extra ...Option) []Option {
	opts := []Option{
		WithStore(repository.NewMemStore(repository.WithHistoryLimit(cfg.HistoryLimit))),
		WithUpdateParallelism(cfg.UpdateParallelism),
		WithRater(rating.NewElo(
			rating.WithEloK(cfg.EloKFactor),
			rating.WithEloInitial(cfg.EloInitial),
		)),
		WithRater(rating.NewWDL()),
		WithRater(rating.NewGlicko(
			rating.WithGlickoInitial(cfg.GlickoInitialRating, cfg.GlickoInitialDeviation),
			rating.WithGlickoUncertaintyIncrease(cfg.GlickoUncertaintyIncrease),
			rating.WithGlickoDeviationFloor(cfg.GlickoDeviationFloor),
		)),
		WithRater(rating.NewGlicko2(
			rating.WithGlicko2Tau(cfg.Glicko2Tau),
			rating.WithGlicko2Initial(cfg.Glicko2InitialRating, cfg.Glicko2InitialDeviation, cfg.Glicko2InitialVolatility),
			rating.WithGlicko2VolatilityFloor(cfg.Glicko2VolatilityFloor),
		)),
		WithRater(rating.NewTrueSkill(
			rating.WithTrueSkillInitial(cfg.TrueSkillInitialMu, cfg.TrueSkillInitialSigma),
			rating.WithTrueSkillBeta(cfg.TrueSkillBeta),
			rating.WithTrueSkillDynamics(cfg.TrueSkillDynamics),
			rating.WithTrueSkillDrawProbability(cfg.TrueSkillDrawProb),
		)),
		WithRater(rating.NewBayesElo(
			rating.WithBayesEloIterations(cfg.BayesEloIterations),
			rating.WithBayesEloTolerance(cfg.BayesEloTolerance),
			rating.WithBayesEloDrawPrior(cfg.BayesEloDrawPrior),
		)),
		WithSolver(equilibrium.NewNashAverager(
			equilibrium.WithNashIterations(cfg.NashIterations),
			equilibrium.WithNashTolerance(cfg.NashTolerance),
			equilibrium.WithNashRestarts(cfg.NashRestarts),
		)),
		WithSolver(equilibrium.NewAlphaRanker(
			equilibrium.WithAlpha(cfg.AlphaRankAlpha),
			equilibrium.WithPopulationSize(cfg.AlphaRankPop),
			equilibrium.WithMutationMass(cfg.AlphaRankMut),
		)),
	}
	return append(opts, extra...)
}

// Methods returns the configured rating algorithms in registration order.
func (s *Service) Methods() []types.Method {
	out := make([]types.Method, len(s.methods))
	copy(out, s.methods)
	return out
}

// SubmitPeriod runs one rating period through every configured algorithm
// and commits the resulting populations under the period's name. Invalid
// outcomes are rejected up front; outcomes whose id was already processed
// are dropped, so resubmitting a period is idempotent at the outcome
// level. Ids are only marked processed once every algorithm has
// committed, so a failed submission can be retried with the same
// outcomes. Algorithms run concurrently, bounded by the configured
// parallelism; each one reads the same prior snapshot and commits
// independently.
func (s *Service) SubmitPeriod(ctx context.Context, period model.RatingPeriod) error {
	fresh := make([]model.Outcome, 0, len(period.Outcomes))
	invalid := 0
	for _, o := range period.Outcomes {
		if err := o.Validate(); err != nil {
			invalid++
			s.metrics.RecordInvalidOutcome()
			s.logger.Warn(ctx, "rejecting invalid outcome",
				logger.String("outcomeID", o.OutcomeID),
				logger.String("period", period.Name),
				logger.Error(err),
			)
			continue
		}
		if s.deduper.Seen(ctx, o.OutcomeID) {
			s.logger.Debug(ctx, "dropping duplicate outcome",
				logger.String("outcomeID", o.OutcomeID),
				logger.String("period", period.Name),
			)
			continue
		}
		fresh = append(fresh, o)
	}
	// An all-duplicate period still commits: absent agents receive their
	// algorithm's idle adjustment and the period name becomes queryable.
	deduped := model.RatingPeriod{Name: period.Name, Outcomes: fresh}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, fanout(s.parallelism, len(s.methods)))
	for _, method := range s.methods {
		wg.Add(1)
		sem <- struct{}{}
		go func(method types.Method) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.updateMethod(ctx, method, deduped); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", method, err))
				mu.Unlock()
			}
		}(method)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("submit period %q: %w", period.Name, err)
	}
	for _, o := range fresh {
		s.deduper.Record(ctx, o.OutcomeID)
	}
	s.logger.Info(ctx, "rating period committed",
		logger.String("period", period.Name),
		logger.Int("outcomes", len(fresh)),
		logger.Int("duplicates", len(period.Outcomes)-len(fresh)-invalid),
		logger.Int("invalid", invalid),
	)
	return nil
}

// fanout resolves the worker bound for the method fan-out.
func fanout(parallelism, methods int) int {
	if parallelism > 0 && parallelism < methods {
		return parallelism
	}
	if methods == 0 {
		return 1
	}
	return methods
}

func (s *Service) updateMethod(ctx context.Context, method types.Method, period model.RatingPeriod) error {
	start := time.Now()

	prior, err := s.store.Population(ctx, method)
	if err != nil {
		return fmt.Errorf("load prior: %w", err)
	}
	next, err := s.raters[method].Update(ctx, prior, period)
	if err != nil {
		if errors.Is(err, rating.ErrNonConvergence) {
			s.metrics.RecordConvergenceFailure(string(method))
		}
		return fmt.Errorf("update: %w", err)
	}
	if err := s.store.Commit(ctx, method, period.Name, next); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.metrics.RecordPeriodProcessed(string(method), len(period.Outcomes), time.Since(start))
	s.metrics.SetPopulationSize(string(method), len(next))
	return nil
}

// Rating returns the current state of one agent under the method.
func (s *Service) Rating(ctx context.Context, method types.Method, id types.AgentID) (rating.State, error) {
	if _, ok := s.raters[method]; !ok {
		return nil, fmt.Errorf("method %q is not configured", method)
	}
	return s.store.Get(ctx, method, id)
}

// Leaderboard returns the current population ordered by display score,
// best first. Agents with equal scores share a rank and ties are broken
// by agent id for a stable listing.
func (s *Service) Leaderboard(ctx context.Context, method types.Method) ([]types.Entry, error) {
	pop, err := s.population(ctx, method)
	if err != nil {
		return nil, err
	}
	return entries(pop), nil
}

// Ranking returns the current population order under the method, best
// first.
func (s *Service) Ranking(ctx context.Context, method types.Method) (types.Ranking, error) {
	rows, err := s.Leaderboard(ctx, method)
	if err != nil {
		return nil, err
	}
	out := make(types.Ranking, len(rows))
	for i, e := range rows {
		out[i] = e.AgentID
	}
	return out, nil
}

// Snapshot returns the leaderboard as committed for a named period.
func (s *Service) Snapshot(ctx context.Context, method types.Method, period string) ([]types.Entry, error) {
	if _, ok := s.raters[method]; !ok {
		return nil, fmt.Errorf("method %q is not configured", method)
	}
	pop, err := s.store.Snapshot(ctx, method, period)
	if err != nil {
		return nil, err
	}
	return entries(pop), nil
}

// Periods lists the committed period names for the method in commit order.
func (s *Service) Periods(ctx context.Context, method types.Method) []string {
	return s.store.Periods(ctx, method)
}

func (s *Service) population(ctx context.Context, method types.Method) (map[types.AgentID]rating.State, error) {
	if _, ok := s.raters[method]; !ok {
		return nil, fmt.Errorf("method %q is not configured", method)
	}
	return s.store.Population(ctx, method)
}

// entries flattens a population snapshot into ranked rows using
// competition ranking: equal scores share a rank and the next distinct
// score skips the shared positions.
func entries(pop map[types.AgentID]rating.State) []types.Entry {
	rows := make([]types.Entry, 0, len(pop))
	for id, st := range pop {
		rows = append(rows, types.Entry{AgentID: id, Score: st.Score()})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].AgentID < rows[j].AgentID
	})
	for i := range rows {
		if i > 0 && rows[i].Score == rows[i-1].Score {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = i + 1
	}
	return rows
}

// EvaluateGame builds the empirical game observed in the outcomes and
// solves it with the named equilibrium method.
func (s *Service) EvaluateGame(ctx context.Context, outcomes []model.Outcome, method equilibrium.Method) (equilibrium.Distribution, error) {
	solver, ok := s.solvers[method]
	if !ok {
		return equilibrium.Distribution{}, fmt.Errorf("solver %q is not configured", method)
	}

	g, err := s.builder.Build(outcomes)
	if err != nil {
		s.metrics.RecordDegenerateGame()
		return equilibrium.Distribution{}, fmt.Errorf("build game: %w", err)
	}

	start := time.Now()
	dist, err := solver.Solve(ctx, g)
	if err != nil {
		switch {
		case errors.Is(err, equilibrium.ErrNonConvergence):
			s.metrics.RecordConvergenceFailure(string(method))
		case errors.Is(err, equilibrium.ErrAmbiguousEquilibrium),
			errors.Is(err, equilibrium.ErrDegenerateChain):
			s.metrics.RecordDegenerateGame()
		}
		return equilibrium.Distribution{}, fmt.Errorf("solve %s: %w", method, err)
	}
	s.metrics.RecordSolve(string(method), time.Since(start))
	s.metrics.ObserveSolverIterations(string(method), dist.Iterations)

	s.logger.Debug(ctx, "equilibrium solved",
		logger.String("method", string(method)),
		logger.Int("agents", g.Len()),
	)
	return dist, nil
}

// RankDistance measures how far apart two rankings of the same agents
// are under the named metric.
func (s *Service) RankDistance(a, b types.Ranking, kind metric.Kind) (float64, error) {
	m, err := metric.New(kind)
	if err != nil {
		return 0, err
	}
	return m.Distance(a, b)
}

// CompareMethods reports the pairwise ranking distance between the
// current populations of two rating algorithms.
func (s *Service) CompareMethods(ctx context.Context, a, b types.Method, kind metric.Kind) (float64, error) {
	ra, err := s.Ranking(ctx, a)
	if err != nil {
		return 0, err
	}
	rb, err := s.Ranking(ctx, b)
	if err != nil {
		return 0, err
	}
	return s.RankDistance(ra, rb, kind)
}
