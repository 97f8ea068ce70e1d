package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/poprank/internal/domain/rating"
	"github.com/okian/poprank/internal/domain/types"
)

// defaultHistoryLimit caps retained period snapshots per method.
const defaultHistoryLimit = 64

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithHistoryLimit sets how many period snapshots are retained per method.
// Zero disables snapshot history.
func WithHistoryLimit(n int) Option {
	return func(s *MemStore) {
		if n >= 0 {
			s.historyLimit = n
		}
	}
}

// methodSpace holds the current population and the retained snapshots for
// one algorithm.
type methodSpace struct {
	current   map[types.AgentID]rating.State
	snapshots map[string]map[types.AgentID]rating.State
	order     []string
}

// MemStore is an in-memory Store. Rating states are treated as immutable
// values: Commit installs a fresh population map, so concurrent readers
// keep whatever snapshot they already hold.
type MemStore struct {
	mu           sync.RWMutex
	spaces       map[types.Method]*methodSpace
	historyLimit int
}

// NewMemStore creates an in-memory rating state store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		spaces:       make(map[types.Method]*methodSpace),
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemStore) space(method types.Method) *methodSpace {
	sp, ok := s.spaces[method]
	if !ok {
		sp = &methodSpace{
			current:   make(map[types.AgentID]rating.State),
			snapshots: make(map[string]map[types.AgentID]rating.State),
		}
		s.spaces[method] = sp
	}
	return sp
}

func clone(states map[types.AgentID]rating.State) map[types.AgentID]rating.State {
	out := make(map[types.AgentID]rating.State, len(states))
	for id, st := range states {
		out[id] = st
	}
	return out
}

// Commit implements Store.
func (s *MemStore) Commit(ctx context.Context, method types.Method, period string, states map[types.AgentID]rating.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fresh := clone(states)

	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.space(method)
	sp.current = fresh

	if s.historyLimit == 0 {
		return nil
	}
	if _, exists := sp.snapshots[period]; !exists {
		sp.order = append(sp.order, period)
	}
	sp.snapshots[period] = clone(fresh)
	for len(sp.order) > s.historyLimit {
		oldest := sp.order[0]
		sp.order = sp.order[1:]
		delete(sp.snapshots, oldest)
	}
	return nil
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, method types.Method, id types.AgentID) (rating.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.spaces[method]
	if !ok {
		return nil, fmt.Errorf("method %q: %w", method, ErrNotFound)
	}
	st, ok := sp.current[id]
	if !ok {
		return nil, fmt.Errorf("agent %q under %q: %w", id, method, ErrNotFound)
	}
	return st, nil
}

// Population implements Store.
func (s *MemStore) Population(ctx context.Context, method types.Method) (map[types.AgentID]rating.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.spaces[method]
	if !ok {
		return map[types.AgentID]rating.State{}, nil
	}
	return clone(sp.current), nil
}

// Snapshot implements Store.
func (s *MemStore) Snapshot(ctx context.Context, method types.Method, period string) (map[types.AgentID]rating.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.spaces[method]
	if !ok {
		return nil, fmt.Errorf("method %q: %w", method, ErrNotFound)
	}
	snap, ok := sp.snapshots[period]
	if !ok {
		return nil, fmt.Errorf("period %q under %q: %w", period, method, ErrNotFound)
	}
	return clone(snap), nil
}

// Periods implements Store.
func (s *MemStore) Periods(_ context.Context, method types.Method) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.spaces[method]
	if !ok {
		return nil
	}
	out := make([]string, len(sp.order))
	copy(out, sp.order)
	return out
}

// Count implements Store.
func (s *MemStore) Count(_ context.Context, method types.Method) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.spaces[method]
	if !ok {
		return 0
	}
	return len(sp.current)
}
