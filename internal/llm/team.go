package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"inkwell-backend/internal/logger"
)

// Team coordinates generation across the registry's members: sequential
// fallback chains, parallel fan-out, availability and warm-up sweeps, and
// task-based routing. It holds no state of its own beyond the registry.
type Team struct {
	registry *Registry
}

// NewTeam creates a coordinator over the given registry.
func NewTeam(registry *Registry) *Team {
	return &Team{registry: registry}
}

// Registry exposes the underlying registry for membership operations.
func (t *Team) Registry() *Registry {
	return t.registry
}

// CheckAllAvailability probes every enabled member concurrently and reports
// reachability per member id. One member's failure never blocks the others.
func (t *Team) CheckAllAvailability(ctx context.Context) map[string]bool {
	return t.sweep(ctx, func(ctx context.Context, p Provider) bool {
		return p.CheckAvailability(ctx)
	})
}

// WarmUpAll issues a throwaway generation to every enabled member
// concurrently. Warm-up failures are recorded as false, never raised.
func (t *Team) WarmUpAll(ctx context.Context) map[string]bool {
	return t.sweep(ctx, func(ctx context.Context, p Provider) bool {
		return p.WarmUp(ctx)
	})
}

// sweep fans a boolean probe out over the enabled members. The result map
// has one entry per enabled member regardless of completion order; on
// cancellation the still-outstanding probes resolve to false.
func (t *Team) sweep(ctx context.Context, probe func(context.Context, Provider) bool) map[string]bool {
	members := t.registry.Enabled()
	results := make(map[string]bool, len(members))

	var mu sync.Mutex
	var g errgroup.Group
	for _, cfg := range members {
		provider, ok := t.registry.Provider(cfg.ID)
		if !ok {
			continue
		}
		id := cfg.ID
		g.Go(func() error {
			ok := probe(ctx, provider)
			mu.Lock()
			results[id] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// GenerateWithFallback tries members one at a time until one succeeds:
// preferred ids first (in the order given, skipping unknown or disabled
// ids), then the primary, then the remaining enabled members in registry
// order. A flaky member is never redialed; retry is expressed only as
// moving down the chain. Exhaustion returns *AllFailedError carrying the
// ordered per-member causes.
func (t *Team) GenerateWithFallback(ctx context.Context, prompt string, opts *GenerateOptions, preferredIDs ...string) (*GenerationResult, error) {
	return t.generateSequential(ctx, prompt, opts, t.fallbackChain(preferredIDs))
}

// fallbackChain builds the ordered attempt sequence for GenerateWithFallback.
func (t *Team) fallbackChain(preferredIDs []string) []string {
	seen := make(map[string]bool)
	var chain []string

	appendID := func(id string) {
		if !seen[id] {
			seen[id] = true
			chain = append(chain, id)
		}
	}

	for _, id := range preferredIDs {
		cfg, ok := t.registry.Get(id)
		if !ok || !cfg.Enabled {
			continue
		}
		appendID(id)
	}
	if primary, ok := t.registry.Primary(); ok {
		appendID(primary.ID)
	}
	for _, cfg := range t.registry.Enabled() {
		appendID(cfg.ID)
	}
	return chain
}

// generateSequential runs the strictly ordered attempt loop: attempt N+1
// never starts before attempt N's outcome is known.
func (t *Team) generateSequential(ctx context.Context, prompt string, opts *GenerateOptions, chain []string) (*GenerationResult, error) {
	var attempts []Attempt

	for _, id := range chain {
		provider, ok := t.registry.Provider(id)
		if !ok {
			continue
		}

		text, err := provider.Generate(ctx, prompt, opts)
		if err == nil {
			logger.Debug("generation succeeded", "member", id, "attempts", len(attempts)+1)
			return &GenerationResult{MemberID: id, Text: text}, nil
		}

		logger.Warn("team member failed, falling back", "member", id, "error", err)
		attempts = append(attempts, Attempt{MemberID: id, Err: err})

		if ctx.Err() != nil {
			break
		}
	}

	return nil, &AllFailedError{Attempts: attempts}
}

// ParallelGenerate fans the same prompt out to exactly the given members
// concurrently. Every requested id produces an outcome, success or classified
// failure; the only structural error is an id absent from the registry.
// When ids is empty the enabled member set is used.
func (t *Team) ParallelGenerate(ctx context.Context, prompt string, opts *GenerateOptions, ids []string) (map[string]GenerationOutcome, error) {
	if len(ids) == 0 {
		for _, cfg := range t.registry.Enabled() {
			ids = append(ids, cfg.ID)
		}
	}

	providers := make(map[string]Provider, len(ids))
	for _, id := range ids {
		provider, ok := t.registry.Provider(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
		}
		providers[id] = provider
	}

	outcomes := make(map[string]GenerationOutcome, len(ids))
	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range ids {
		id := id
		provider := providers[id]
		g.Go(func() error {
			text, err := provider.Generate(ctx, prompt, opts)
			mu.Lock()
			outcomes[id] = GenerationOutcome{MemberID: id, Text: text, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// RouteByTask selects candidate members by a fixed per-task policy, then
// delegates to the sequential fallback loop restricted to that subset.
// Routing is an optimization hint, not a hard constraint: an empty subset
// falls back to the full enabled set.
func (t *Team) RouteByTask(ctx context.Context, prompt string, opts *GenerateOptions, task TaskType) (*GenerationResult, error) {
	chain := t.routeCandidates(task)
	if len(chain) == 0 {
		logger.Debug("no members match task policy, using full fallback chain", "task", task)
		return t.GenerateWithFallback(ctx, prompt, opts)
	}
	return t.generateSequential(ctx, prompt, opts, chain)
}

// routeCandidates applies the routing policy table and returns the ordered
// candidate ids, best first.
func (t *Team) routeCandidates(task TaskType) []string {
	switch task {
	case TaskQuick:
		fast := t.registry.Filter(func(c BackendConfig) bool { return c.SpeedTier == SpeedFast })
		sort.SliceStable(fast, func(i, j int) bool {
			return costRank(fast[i].CostTier) < costRank(fast[j].CostTier)
		})
		return memberIDs(fast)

	case TaskCreative:
		medium := t.registry.Filter(func(c BackendConfig) bool { return c.SpeedTier == SpeedMedium })
		slow := t.registry.Filter(func(c BackendConfig) bool { return c.SpeedTier == SpeedSlow })
		return memberIDs(append(medium, slow...))

	case TaskStructured:
		capable := t.registry.Filter(func(c BackendConfig) bool { return c.SupportsToolCalling })
		return memberIDs(capable)

	case TaskAnalytical:
		return memberIDs(t.registry.Enabled())

	default:
		return nil
	}
}

func memberIDs(configs []BackendConfig) []string {
	ids := make([]string, len(configs))
	for i, c := range configs {
		ids[i] = c.ID
	}
	return ids
}

func costRank(c CostTier) int {
	switch c {
	case CostFree:
		return 0
	case CostLow:
		return 1
	case CostMedium:
		return 2
	case CostHigh:
		return 3
	default:
		return 4
	}
}
