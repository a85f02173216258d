package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTeam(t *testing.T, factory *stubFactory, configs ...BackendConfig) *Team {
	t.Helper()
	r := NewRegistry(factory)
	for _, cfg := range configs {
		require.NoError(t, r.Add(cfg))
	}
	return NewTeam(r)
}

func TestGenerateWithFallbackPrimaryFirst(t *testing.T) {
	factory := newStubFactory()
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"), localConfig("c"))
	require.NoError(t, team.Registry().SetPrimary("b"))

	result, err := team.GenerateWithFallback(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "b", result.MemberID)
	assert.Equal(t, "ok from b", result.Text)
}

func TestGenerateWithFallbackMovesDownChain(t *testing.T) {
	factory := newStubFactory()
	factory.failWith("a", ErrUnreachable)
	factory.failWith("b", ErrRateLimited)
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"), localConfig("c"))

	result, err := team.GenerateWithFallback(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "c", result.MemberID)
}

func TestGenerateWithFallbackAllFail(t *testing.T) {
	factory := newStubFactory()
	factory.failWith("a", ErrUnreachable)
	factory.failWith("b", ErrAuthentication)
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"))

	_, err := team.GenerateWithFallback(context.Background(), "hi", nil)
	require.Error(t, err)

	var allFailed *AllFailedError
	require.True(t, errors.As(err, &allFailed))
	require.Len(t, allFailed.Attempts, 2)
	assert.Equal(t, "a", allFailed.Attempts[0].MemberID)
	assert.ErrorIs(t, allFailed.Attempts[0].Err, ErrUnreachable)
	assert.Equal(t, "b", allFailed.Attempts[1].MemberID)
	assert.ErrorIs(t, allFailed.Attempts[1].Err, ErrAuthentication)
}

func TestGenerateWithFallbackPreferredOrder(t *testing.T) {
	factory := newStubFactory()
	factory.failWith("c", ErrUnreachable)
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"), localConfig("c"))

	result, err := team.GenerateWithFallback(context.Background(), "hi", nil, "c", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", result.MemberID, "preferred ids run before the primary")
}

func TestGenerateWithFallbackSkipsUnknownAndDisabledPreferred(t *testing.T) {
	factory := newStubFactory()
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"))
	require.NoError(t, team.Registry().SetEnabled("b", false))

	result, err := team.GenerateWithFallback(context.Background(), "hi", nil, "ghost", "b")
	require.NoError(t, err)
	assert.Equal(t, "a", result.MemberID)
}

func TestGenerateWithFallbackEmptyTeam(t *testing.T) {
	team := buildTeam(t, newStubFactory())

	_, err := team.GenerateWithFallback(context.Background(), "hi", nil)
	var allFailed *AllFailedError
	require.True(t, errors.As(err, &allFailed))
	assert.Empty(t, allFailed.Attempts)
}

func TestGenerateWithFallbackSequential(t *testing.T) {
	factory := newStubFactory()
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	track := func(id string, fail bool) func(context.Context, string, *GenerateOptions) (string, error) {
		return func(context.Context, string, *GenerateOptions) (string, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			defer func() {
				mu.Lock()
				inFlight--
				mu.Unlock()
			}()
			if fail {
				return "", ErrUnreachable
			}
			return id, nil
		}
	}
	factory.behavior["a"] = track("a", true)
	factory.behavior["b"] = track("b", true)
	factory.behavior["c"] = track("c", false)
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"), localConfig("c"))

	_, err := team.GenerateWithFallback(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, maxInFlight, "fallback attempts must never overlap")
}

func TestParallelGenerate(t *testing.T) {
	factory := newStubFactory()
	factory.failWith("b", ErrRateLimited)
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"), localConfig("c"))

	outcomes, err := team.ParallelGenerate(context.Background(), "hi", nil, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.False(t, outcomes["a"].Failed())
	assert.Equal(t, "ok from a", outcomes["a"].Text)
	assert.True(t, outcomes["b"].Failed())
	assert.ErrorIs(t, outcomes["b"].Err, ErrRateLimited)
	assert.False(t, outcomes["c"].Failed())
}

func TestParallelGenerateUnknownID(t *testing.T) {
	team := buildTeam(t, newStubFactory(), localConfig("a"))

	_, err := team.ParallelGenerate(context.Background(), "hi", nil, []string{"a", "ghost"})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestParallelGenerateDefaultsToEnabled(t *testing.T) {
	factory := newStubFactory()
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"))
	require.NoError(t, team.Registry().SetEnabled("b", false))

	outcomes, err := team.ParallelGenerate(context.Background(), "hi", nil, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Contains(t, outcomes, "a")
}

func TestCheckAllAvailability(t *testing.T) {
	factory := newStubFactory()
	factory.offline["b"] = true
	team := buildTeam(t, factory, localConfig("a"), localConfig("b"), localConfig("c"))
	require.NoError(t, team.Registry().SetEnabled("c", false))

	status := team.CheckAllAvailability(context.Background())
	require.Len(t, status, 2, "disabled members are not probed")
	assert.True(t, status["a"])
	assert.False(t, status["b"])
}

func TestWarmUpAll(t *testing.T) {
	factory := newStubFactory()
	factory.failWith("cold", ErrUnreachable)
	team := buildTeam(t, factory, localConfig("warm"), localConfig("cold"))

	warmed := team.WarmUpAll(context.Background())
	assert.True(t, warmed["warm"])
	assert.False(t, warmed["cold"])
}

func TestRouteByTaskQuickPrefersFastAndCheap(t *testing.T) {
	factory := newStubFactory()

	fastFree := localConfig("fast-free")
	fastFree.SpeedTier = SpeedFast
	fastFree.CostTier = CostFree

	fastPricey := localConfig("fast-pricey")
	fastPricey.SpeedTier = SpeedFast
	fastPricey.CostTier = CostHigh

	slow := localConfig("slow")
	slow.SpeedTier = SpeedSlow

	// Registration order puts the expensive member first; cost ordering
	// must still pick the free one.
	team := buildTeam(t, factory, fastPricey, fastFree, slow)

	result, err := team.RouteByTask(context.Background(), "hi", nil, TaskQuick)
	require.NoError(t, err)
	assert.Equal(t, "fast-free", result.MemberID)
}

func TestRouteByTaskCreativePrefersMediumOverSlow(t *testing.T) {
	factory := newStubFactory()

	slow := localConfig("slow")
	slow.SpeedTier = SpeedSlow
	medium := localConfig("medium")
	medium.SpeedTier = SpeedMedium

	team := buildTeam(t, factory, slow, medium)

	result, err := team.RouteByTask(context.Background(), "hi", nil, TaskCreative)
	require.NoError(t, err)
	assert.Equal(t, "medium", result.MemberID)
}

func TestRouteByTaskStructuredRequiresToolCalling(t *testing.T) {
	factory := newStubFactory()

	plain := localConfig("plain")
	tooler := localConfig("tooler")
	tooler.SupportsToolCalling = true

	team := buildTeam(t, factory, plain, tooler)

	result, err := team.RouteByTask(context.Background(), "hi", nil, TaskStructured)
	require.NoError(t, err)
	assert.Equal(t, "tooler", result.MemberID)
}

func TestRouteByTaskEmptySubsetFallsBack(t *testing.T) {
	factory := newStubFactory()
	team := buildTeam(t, factory, localConfig("only")) // medium tier, no tools

	result, err := team.RouteByTask(context.Background(), "hi", nil, TaskStructured)
	require.NoError(t, err)
	assert.Equal(t, "only", result.MemberID, "routing is a hint, not a hard constraint")
}
