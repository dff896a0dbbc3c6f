// Package strategy implements the execution engine's opportunity-type-keyed
// strategy dispatch: a registry of Strategy implementations looked up by
// domain.OpportunityType.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arbplane/arbplane/internal/domain"
)

// Strategy is the contract every execution strategy implements. Context is
// the immutable, cached StrategyContext built once and invalidated only on
// dependency change (activation, restart).
type Strategy interface {
	Name() string
	Execute(ctx context.Context, opp domain.Opportunity, sctx *Context) (domain.ExecutionResult, error)
}

// Context bundles the dependencies a strategy needs: providers, wallets, a
// nonce manager, running stats, and the simulation service. It is built
// once by the engine and reused across calls.
type Context struct {
	Providers      map[string]any
	Wallets        map[string]string
	NonceManager   NonceManager
	Stats          *Stats
	SimulationMode bool
}

// NonceManager issues per-wallet nonces for on-chain submission. Strategies
// depend on this narrow interface rather than a concrete chain client, the
// same capability-interface idiom used to avoid cyclic object graphs
// elsewhere in the engine.
type NonceManager interface {
	Next(ctx context.Context, wallet string) (uint64, error)
}

// Stats is a minimal running counter set a strategy may update; it is safe
// for concurrent use.
type Stats struct {
	mu         sync.Mutex
	Executions int64
	Successes  int64
	Failures   int64
}

// RecordExecution increments the running counters.
func (s *Stats) RecordExecution(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Executions++
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
}

// Registry maps an opportunity type to the Strategy that handles it. Safe
// for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[domain.OpportunityType]Strategy
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[domain.OpportunityType]Strategy)}
}

// Register adds a strategy under the given opportunity type, replacing any
// existing registration.
func (r *Registry) Register(t domain.OpportunityType, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[t] = s
}

// Get returns the strategy registered for t, or ErrNoStrategy if none is
// registered.
func (r *Registry) Get(t domain.OpportunityType) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[t]
	if !ok {
		return nil, fmt.Errorf("strategy for opportunity type %q: %w", t, domain.ErrNoStrategy)
	}
	return s, nil
}

// List returns the registered opportunity types in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// Dispatch looks up the strategy for opp.Type and executes it.
func (r *Registry) Dispatch(ctx context.Context, opp domain.Opportunity, sctx *Context) (domain.ExecutionResult, error) {
	s, err := r.Get(opp.Type)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return s.Execute(ctx, opp, sctx)
}
