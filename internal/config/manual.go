package config

import (
	"log/slog"
	"sync"

	"github.com/ehrlich-b/codejail/internal/limits"
)

// Manual is an in-memory Provider built programmatically, for embedding in
// a host application or for tests. It mirrors the reference implementation's
// "manually configured" provider: no file on disk, just direct calls.
type Manual struct {
	log *slog.Logger

	mu        sync.RWMutex
	commands  map[string]CommandSpec
	defaults  limits.Limits
	overrides map[string]limits.Patch
}

// NewManual returns a Manual provider seeded with the given default limits.
func NewManual(defaults limits.Limits) *Manual {
	return &Manual{
		log:       slog.Default(),
		commands:  make(map[string]CommandSpec),
		defaults:  defaults,
		overrides: make(map[string]limits.Patch),
	}
}

// Configure registers (or replaces) a CommandSpec under spec.Name.
func (m *Manual) Configure(spec CommandSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[spec.Name] = spec
}

// SetOverrides registers a limits Patch for a context key, replacing any
// previously registered patch for that key. A PROXY field set on patch is
// never honored (see Merge) and is logged as ignored, matching the File
// provider.
func (m *Manual) SetOverrides(contextKey string, patch limits.Patch) {
	if patch.Proxy != nil {
		m.log.Warn("codejail: ignoring PROXY override in limits overrides", "context", contextKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[contextKey] = patch
}

// SetDefaultLimits replaces the process-wide default limits.
func (m *Manual) SetDefaultLimits(l limits.Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = l
}

func (m *Manual) GetCommand(name string) (CommandSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.commands[name]
	return spec, ok
}

func (m *Manual) GetDefaultLimits() limits.Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaults
}

func (m *Manual) GetOverrides(contextKey string) limits.Patch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overrides[contextKey]
}

func (m *Manual) EffectiveLimits(contextKey string) limits.Limits {
	return effectiveLimits(m, contextKey)
}
