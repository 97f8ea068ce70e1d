// Package repository defines the rating state store interface and errors.
package repository

import (
	"context"

	"github.com/okian/poprank/internal/domain/rating"
	"github.com/okian/poprank/internal/domain/types"
)

// Store provides read/write access to per-agent rating state, one state
// namespace per algorithm. Writes are full-state replacements: a committed
// period becomes visible atomically and readers never observe a
// half-updated population.
type Store interface {
	// Commit atomically replaces the population snapshot for the method
	// and records it under the period name.
	Commit(ctx context.Context, method types.Method, period string, states map[types.AgentID]rating.State) error

	// Get returns the current state for an agent.
	// Returns ErrNotFound if the agent has no state under the method.
	Get(ctx context.Context, method types.Method, id types.AgentID) (rating.State, error)

	// Population returns a copy of the current state of every agent
	// tracked under the method.
	Population(ctx context.Context, method types.Method) (map[types.AgentID]rating.State, error)

	// Snapshot returns the population as committed for a named period.
	// Returns ErrNotFound for an unknown period.
	Snapshot(ctx context.Context, method types.Method, period string) (map[types.AgentID]rating.State, error)

	// Periods lists the committed period names for the method in commit
	// order.
	Periods(ctx context.Context, method types.Method) []string

	// Count returns the number of agents tracked under the method.
	Count(ctx context.Context, method types.Method) int
}
