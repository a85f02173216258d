package llm

import (
	"fmt"
	"sync"
)

// memberEntry pairs a config with the provider materialized from it.
type memberEntry struct {
	config   BackendConfig
	provider Provider
}

// Registry is the ordered collection of configured team members plus at most
// one designated primary. It owns the (config, provider) pairs; providers are
// materialized once per Add through the injected factory.
//
// Mutations are serialized behind a write lock so the primary designation can
// never point at a missing or disabled member. Reads hand out copies.
type Registry struct {
	mu        sync.RWMutex
	members   map[string]*memberEntry
	order     []string
	primaryID string
	factory   ProviderFactory
}

// NewRegistry creates an empty registry whose members will be materialized
// through the given factory.
func NewRegistry(factory ProviderFactory) *Registry {
	return &Registry{
		members: make(map[string]*memberEntry),
		factory: factory,
	}
}

// Add validates the config, materializes its provider, and appends the member.
// The first enabled member added to an empty registry becomes primary.
func (r *Registry) Add(cfg BackendConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[cfg.ID]; exists {
		return fmt.Errorf("member %q already registered", cfg.ID)
	}

	provider, err := r.factory.Create(&cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider for %q: %w", cfg.ID, err)
	}

	r.members[cfg.ID] = &memberEntry{config: cfg, provider: provider}
	r.order = append(r.order, cfg.ID)

	if r.primaryID == "" && cfg.Enabled {
		r.primaryID = cfg.ID
	}
	return nil
}

// Remove deletes a member. Removing the current primary clears the
// designation.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[id]; !exists {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}

	delete(r.members, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.primaryID == id {
		r.primaryID = ""
	}
	return nil
}

// Get returns a copy of a member's config.
func (r *Registry) Get(id string) (BackendConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.members[id]
	if !ok {
		return BackendConfig{}, false
	}
	return entry.config, true
}

// Provider returns the materialized provider for a member.
func (r *Registry) Provider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.members[id]
	if !ok {
		return nil, false
	}
	return entry.provider, true
}

// List returns copies of all member configs in registration order.
func (r *Registry) List() []BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(false)
}

// Enabled returns copies of the enabled member configs in registration order.
func (r *Registry) Enabled() []BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(true)
}

func (r *Registry) listLocked(enabledOnly bool) []BackendConfig {
	configs := make([]BackendConfig, 0, len(r.order))
	for _, id := range r.order {
		cfg := r.members[id].config
		if enabledOnly && !cfg.Enabled {
			continue
		}
		configs = append(configs, cfg)
	}
	return configs
}

// Filter returns the enabled members matching the predicate, in registration
// order.
func (r *Registry) Filter(pred func(BackendConfig) bool) []BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []BackendConfig
	for _, id := range r.order {
		cfg := r.members[id].config
		if cfg.Enabled && pred(cfg) {
			matches = append(matches, cfg)
		}
	}
	return matches
}

// SetPrimary designates a member as primary. The member must exist and be
// enabled; otherwise the previous designation is left untouched.
func (r *Registry) SetPrimary(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	if !entry.config.Enabled {
		return fmt.Errorf("%w: %s is disabled", ErrMemberNotFound, id)
	}
	r.primaryID = id
	return nil
}

// Primary returns a copy of the primary member's config, or false when no
// primary is designated.
func (r *Registry) Primary() (BackendConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.primaryID == "" {
		return BackendConfig{}, false
	}
	return r.members[r.primaryID].config, true
}

// SetEnabled flips a member's enabled flag. Disabling the current primary
// clears the designation, preserving the enabled-primary invariant.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	entry.config.Enabled = enabled
	if !enabled && r.primaryID == id {
		r.primaryID = ""
	}
	return nil
}

// Len returns the number of members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Serialize produces the persistable snapshot: members in order with
// credentials lifted out into their own map.
func (r *Registry) Serialize() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &Snapshot{
		Members:     make([]BackendConfig, 0, len(r.order)),
		Credentials: make(map[string]string),
		PrimaryID:   r.primaryID,
	}
	for _, id := range r.order {
		cfg := r.members[id].config
		if cfg.APIKey != "" {
			snap.Credentials[id] = cfg.APIKey
		}
		cfg.APIKey = ""
		snap.Members = append(snap.Members, cfg)
	}
	return snap
}

// NewRegistryFromSnapshot rebuilds a registry from a snapshot: same member
// set and order, same attributes, same primary designation.
func NewRegistryFromSnapshot(snap *Snapshot, factory ProviderFactory) (*Registry, error) {
	r := NewRegistry(factory)
	for _, cfg := range snap.Members {
		if key, ok := snap.Credentials[cfg.ID]; ok {
			cfg.APIKey = key
		}
		if err := r.Add(cfg); err != nil {
			return nil, err
		}
	}

	// Restore the designation exactly; Add may have auto-picked one.
	r.mu.Lock()
	r.primaryID = ""
	r.mu.Unlock()
	if snap.PrimaryID != "" {
		if err := r.SetPrimary(snap.PrimaryID); err != nil {
			return nil, fmt.Errorf("snapshot primary: %w", err)
		}
	}
	return r, nil
}
