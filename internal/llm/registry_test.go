package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider lets tests script per-member behavior without any transport.
type stubProvider struct {
	cfg       *BackendConfig
	available bool
	generate  func(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)
}

func (p *stubProvider) Config() *BackendConfig { return p.cfg }

func (p *stubProvider) CheckAvailability(_ context.Context) bool { return p.available }

func (p *stubProvider) Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	if p.generate != nil {
		return p.generate(ctx, prompt, opts)
	}
	return "ok from " + p.cfg.ID, nil
}

func (p *stubProvider) Stream(ctx context.Context, prompt string, opts *GenerateOptions) (<-chan StreamChunk, error) {
	text, err := p.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamChunk, 2)
	out <- StreamChunk{Content: text}
	out <- StreamChunk{Done: true}
	close(out)
	return out, nil
}

func (p *stubProvider) WarmUp(ctx context.Context) bool {
	_, err := p.Generate(ctx, "Hello", nil)
	return err == nil
}

// stubFactory materializes stubProviders and records per-id behavior.
type stubFactory struct {
	behavior map[string]func(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)
	offline  map[string]bool
}

func newStubFactory() *stubFactory {
	return &stubFactory{
		behavior: make(map[string]func(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)),
		offline:  make(map[string]bool),
	}
}

func (f *stubFactory) Create(cfg *BackendConfig) (Provider, error) {
	return &stubProvider{
		cfg:       cfg,
		available: !f.offline[cfg.ID],
		generate:  f.behavior[cfg.ID],
	}, nil
}

func (f *stubFactory) failWith(id string, err error) {
	f.behavior[id] = func(context.Context, string, *GenerateOptions) (string, error) {
		return "", err
	}
}

func localConfig(id string) BackendConfig {
	return NewBackendConfig(id, "member "+id, ProviderOllama, "llama3")
}

func cloudConfig(id string, provider ProviderType) BackendConfig {
	cfg := NewBackendConfig(id, "member "+id, provider, "some-model")
	cfg.APIKey = "test-key"
	return cfg
}

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry(newStubFactory())

	require.NoError(t, r.Add(localConfig("a")))
	require.NoError(t, r.Add(cloudConfig("b", ProviderOpenAI)))
	assert.Equal(t, 2, r.Len())

	err := r.Add(localConfig("a"))
	assert.Error(t, err, "duplicate id must be rejected")

	got, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, ProviderOpenAI, got.Provider)
}

func TestRegistryFirstEnabledBecomesPrimary(t *testing.T) {
	r := NewRegistry(newStubFactory())

	disabled := localConfig("off")
	disabled.Enabled = false
	require.NoError(t, r.Add(disabled))

	_, ok := r.Primary()
	assert.False(t, ok, "disabled member must not become primary")

	require.NoError(t, r.Add(localConfig("on")))
	primary, ok := r.Primary()
	require.True(t, ok)
	assert.Equal(t, "on", primary.ID)
}

func TestRegistrySetPrimary(t *testing.T) {
	r := NewRegistry(newStubFactory())
	require.NoError(t, r.Add(localConfig("a")))
	require.NoError(t, r.Add(localConfig("b")))

	require.NoError(t, r.SetPrimary("b"))
	primary, _ := r.Primary()
	assert.Equal(t, "b", primary.ID)

	err := r.SetPrimary("missing")
	assert.ErrorIs(t, err, ErrMemberNotFound)
	primary, _ = r.Primary()
	assert.Equal(t, "b", primary.ID, "failed designation must leave the previous one intact")

	require.NoError(t, r.SetEnabled("a", false))
	err = r.SetPrimary("a")
	assert.ErrorIs(t, err, ErrMemberNotFound, "disabled member must not be designatable")
}

func TestRegistryRemoveClearsPrimary(t *testing.T) {
	r := NewRegistry(newStubFactory())
	require.NoError(t, r.Add(localConfig("a")))
	require.NoError(t, r.Add(localConfig("b")))

	require.NoError(t, r.Remove("a"))
	_, ok := r.Primary()
	assert.False(t, ok, "removing the primary must clear the designation")

	assert.ErrorIs(t, r.Remove("a"), ErrMemberNotFound)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDisablePrimaryClearsDesignation(t *testing.T) {
	r := NewRegistry(newStubFactory())
	require.NoError(t, r.Add(localConfig("a")))

	require.NoError(t, r.SetEnabled("a", false))
	_, ok := r.Primary()
	assert.False(t, ok)
}

func TestRegistryOrderPreserved(t *testing.T) {
	r := NewRegistry(newStubFactory())
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		require.NoError(t, r.Add(localConfig(id)))
	}

	list := r.List()
	require.Len(t, list, 3)
	for i, cfg := range list {
		assert.Equal(t, ids[i], cfg.ID)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	factory := newStubFactory()
	r := NewRegistry(factory)

	require.NoError(t, r.Add(localConfig("local")))
	require.NoError(t, r.Add(cloudConfig("cloud", ProviderAnthropic)))
	disabled := localConfig("spare")
	disabled.Enabled = false
	require.NoError(t, r.Add(disabled))
	require.NoError(t, r.SetPrimary("cloud"))

	snap := r.Serialize()

	// Credentials live in their own map, never inline in member records.
	data, err := json.Marshal(snap.Members)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "test-key")
	assert.Equal(t, "test-key", snap.Credentials["cloud"])

	restored, err := NewRegistryFromSnapshot(snap, factory)
	require.NoError(t, err)

	assert.Equal(t, r.Len(), restored.Len())
	primary, ok := restored.Primary()
	require.True(t, ok)
	assert.Equal(t, "cloud", primary.ID)

	orig := r.List()
	got := restored.List()
	for i := range orig {
		assert.Equal(t, orig[i].ID, got[i].ID)
		assert.Equal(t, orig[i].Enabled, got[i].Enabled)
	}

	cloud, _ := restored.Get("cloud")
	assert.Equal(t, "test-key", cloud.APIKey, "credential must be reinjected on restore")
}

func TestSnapshotRoundTripNoPrimary(t *testing.T) {
	factory := newStubFactory()
	r := NewRegistry(factory)
	cfg := localConfig("a")
	cfg.Enabled = false
	require.NoError(t, r.Add(cfg))

	restored, err := NewRegistryFromSnapshot(r.Serialize(), factory)
	require.NoError(t, err)

	_, ok := restored.Primary()
	assert.False(t, ok, "restore must not invent a primary the snapshot lacks")
}

func TestRegistryFilter(t *testing.T) {
	r := NewRegistry(newStubFactory())

	fast := localConfig("fast")
	fast.SpeedTier = SpeedFast
	require.NoError(t, r.Add(fast))
	require.NoError(t, r.Add(localConfig("medium")))
	off := localConfig("off")
	off.SpeedTier = SpeedFast
	off.Enabled = false
	require.NoError(t, r.Add(off))

	matches := r.Filter(func(c BackendConfig) bool { return c.SpeedTier == SpeedFast })
	require.Len(t, matches, 1, "disabled members must not match")
	assert.Equal(t, "fast", matches[0].ID)
}

func TestRegistryProviderLookup(t *testing.T) {
	r := NewRegistry(newStubFactory())
	require.NoError(t, r.Add(localConfig("a")))

	p, ok := r.Provider("a")
	require.True(t, ok)
	text, err := p.Generate(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok from a", text)

	_, ok = r.Provider("missing")
	assert.False(t, ok)
}

func TestRegistryFromSnapshotUnknownPrimary(t *testing.T) {
	snap := &Snapshot{
		Members:   []BackendConfig{localConfig("a")},
		PrimaryID: "ghost",
	}
	_, err := NewRegistryFromSnapshot(snap, newStubFactory())
	assert.True(t, errors.Is(err, ErrMemberNotFound))
}
