// Package metrics provides Prometheus metrics for the rating engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Rating pipeline metrics
	periodsProcessed *prometheus.CounterVec
	outcomesConsumed prometheus.Counter
	invalidOutcomes  prometheus.Counter
	updateLatency    *prometheus.HistogramVec
	populationSize   *prometheus.GaugeVec

	// Solver metrics
	solverIterations    *prometheus.HistogramVec
	convergenceFailures *prometheus.CounterVec
	solveLatency        *prometheus.HistogramVec
	degenerateGames     prometheus.Counter
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom histogram buckets for latency metrics.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithEnabled enables or disables metrics collection.
func WithEnabled(enabled bool) Option {
	return func(m *Manager) { m.enabled = enabled }
}

// WithRegistry sets a custom Prometheus registerer, mainly for tests.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// New creates a metrics manager and registers all collectors.
func New(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "poprank",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		return m
	}

	factory := promauto.With(m.registry)

	m.periodsProcessed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "periods_processed_total",
		Help:      "Rating periods committed, by algorithm.",
	}, []string{"method"})

	m.outcomesConsumed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "outcomes_consumed_total",
		Help:      "Outcomes accepted into rating periods.",
	})

	m.invalidOutcomes = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "outcomes_invalid_total",
		Help:      "Outcomes rejected by validation.",
	})

	m.updateLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "update_latency_seconds",
		Help:      "Latency of rating period updates, by algorithm.",
		Buckets:   m.histogramBuckets,
	}, []string{"method"})

	m.populationSize = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "population_size",
		Help:      "Agents tracked per algorithm.",
	}, []string{"method"})

	m.solverIterations = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "solver_iterations",
		Help:      "Iterations used by iterative solvers, by component.",
		Buckets:   []float64{10, 100, 1_000, 10_000, 100_000},
	}, []string{"component"})

	m.convergenceFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "convergence_failures_total",
		Help:      "Iterative solves that exhausted their iteration budget.",
	}, []string{"component"})

	m.solveLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "solve_latency_seconds",
		Help:      "Latency of equilibrium solves, by method.",
		Buckets:   m.histogramBuckets,
	}, []string{"method"})

	m.degenerateGames = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "degenerate_games_total",
		Help:      "Equilibrium solves rejected as inconsistent, ambiguous or non-ergodic.",
	})

	return m
}

// RecordPeriodProcessed counts a committed rating period.
func (m *Manager) RecordPeriodProcessed(method string, outcomes int, elapsed time.Duration) {
	if !m.enabled {
		return
	}
	m.periodsProcessed.WithLabelValues(method).Inc()
	m.outcomesConsumed.Add(float64(outcomes))
	m.updateLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordInvalidOutcome counts an outcome rejected by validation.
func (m *Manager) RecordInvalidOutcome() {
	if !m.enabled {
		return
	}
	m.invalidOutcomes.Inc()
}

// SetPopulationSize publishes the tracked agent count for an algorithm.
func (m *Manager) SetPopulationSize(method string, n int) {
	if !m.enabled {
		return
	}
	m.populationSize.WithLabelValues(method).Set(float64(n))
}

// ObserveSolverIterations records how many iterations a solver used.
func (m *Manager) ObserveSolverIterations(component string, n int) {
	if !m.enabled {
		return
	}
	m.solverIterations.WithLabelValues(component).Observe(float64(n))
}

// RecordConvergenceFailure counts an exhausted iteration budget.
func (m *Manager) RecordConvergenceFailure(component string) {
	if !m.enabled {
		return
	}
	m.convergenceFailures.WithLabelValues(component).Inc()
}

// RecordSolve records the latency of one equilibrium solve.
func (m *Manager) RecordSolve(method string, elapsed time.Duration) {
	if !m.enabled {
		return
	}
	m.solveLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordDegenerateGame counts a solve rejected for structural reasons.
func (m *Manager) RecordDegenerateGame() {
	if !m.enabled {
		return
	}
	m.degenerateGames.Inc()
}
