// Command poprank runs a demonstration of the rating engine: it samples
// a round-robin tournament from agents with known latent skills, rates
// the population with every configured algorithm, compares the induced
// rankings and solves the classic cyclic game for its equilibrium.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	service "github.com/okian/poprank/internal/app"
	"github.com/okian/poprank/internal/config"
	"github.com/okian/poprank/internal/domain/equilibrium"
	"github.com/okian/poprank/internal/domain/metric"
	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
	"github.com/okian/poprank/internal/simulate"
	"github.com/okian/poprank/pkg/logger"
	"github.com/okian/poprank/pkg/metrics"
)

const (
	leaderboardTop = 5
	cycleGames     = 10
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	lg := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		lg.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := service.New(service.FromConfig(cfg,
		service.WithLogger(lg),
		service.WithMetrics(metrics.New()),
	)...)

	if err := run(ctx, svc); err != nil {
		lg.Error(ctx, "demo failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *service.Service) error {
	tournament := simulate.New()
	outcomes, err := tournament.Play()
	if err != nil {
		return fmt.Errorf("simulate tournament: %w", err)
	}
	period, err := model.NewRatingPeriod("round-robin", outcomes)
	if err != nil {
		return fmt.Errorf("build period: %w", err)
	}
	if err := svc.SubmitPeriod(ctx, period); err != nil {
		return err
	}

	for _, method := range svc.Methods() {
		rows, err := svc.Leaderboard(ctx, method)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s leaderboard:\n", method)
		for _, row := range rows {
			if row.Rank > leaderboardTop {
				break
			}
			fmt.Printf("  %2d. %-10s %10.2f\n", row.Rank, row.AgentID, row.Score)
		}
	}

	eloOrder, err := svc.Ranking(ctx, types.MethodElo)
	if err != nil {
		return err
	}
	dist, err := svc.RankDistance(trueOrder(tournament), eloOrder, metric.KendallTau)
	if err != nil {
		return err
	}
	fmt.Printf("\nKendall distance of Elo order from the latent skill order: %.0f\n", dist)

	agreement, err := svc.CompareMethods(ctx, types.MethodElo, types.MethodTrueSkill, metric.KendallTau)
	if err != nil {
		return err
	}
	fmt.Printf("Kendall distance between Elo and TrueSkill orders: %.0f\n", agreement)

	eq, err := svc.EvaluateGame(ctx, simulate.Cycle(cycleGames), equilibrium.NashAveraging)
	if err != nil {
		return err
	}
	fmt.Println("\nNash averaging over the rock-paper-scissors cycle:")
	for i, id := range eq.Agents {
		fmt.Printf("  %-10s %.3f\n", id, eq.Weights[i])
	}
	return nil
}

// trueOrder is the latent skill ranking the tournament sampled from.
func trueOrder(t *simulate.Tournament) types.Ranking {
	return types.Ranking(t.Agents())
}
