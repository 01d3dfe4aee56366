package attributes

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/strata/pkg/log"
	"github.com/rs/zerolog"
)

// Tier is one precedence level of the attribute tree. Higher tiers win.
type Tier int

const (
	TierDefault Tier = iota
	TierRole
	TierEnvironment
	TierOverride
)

func (t Tier) String() string {
	switch t {
	case TierDefault:
		return "default"
	case TierRole:
		return "role"
	case TierEnvironment:
		return "environment"
	case TierOverride:
		return "override"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Scope selects where an override is persisted.
type Scope string

const (
	ScopeNode    Scope = "node"
	ScopeCluster Scope = "cluster"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeNode, ScopeCluster:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q (want node or cluster)", s)
}

var (
	// ErrNotFound is returned when a path resolves to nothing.
	ErrNotFound = errors.New("attribute not found")

	// ErrOverrideTier is returned by SetLayer for the override tier, which
	// is only written through SetOverride.
	ErrOverrideTier = errors.New("override tier is written through SetOverride")
)

// Backend persists the override tier. Paths handed to Save never reach
// into a list: list-valued attributes are always saved whole.
type Backend interface {
	Load(scope Scope) (map[string]any, error)
	Save(scope Scope, path string, value any) error
	Delete(scope Scope, path string) error
}

// Store is a tiered attribute tree. It is safe for concurrent use, though
// convergence itself only ever touches it from one goroutine.
type Store struct {
	mu        sync.RWMutex
	layers    [TierOverride]map[string]any
	overrides map[Scope]map[string]any
	merged    map[string]any
	backend   Backend
	logger    zerolog.Logger
}

// New returns an empty store. backend may be nil for a purely in-memory
// store.
func New(backend Backend) *Store {
	s := &Store{
		overrides: map[Scope]map[string]any{
			ScopeCluster: {},
			ScopeNode:    {},
		},
		backend: backend,
		logger:  log.WithComponent("attributes"),
	}
	for i := range s.layers {
		s.layers[i] = map[string]any{}
	}
	return s
}

// Load replaces the override tier with what the backend holds.
func (s *Store) Load() error {
	if s.backend == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, scope := range []Scope{ScopeCluster, ScopeNode} {
		data, err := s.backend.Load(scope)
		if err != nil {
			return fmt.Errorf("failed to load %s overrides: %w", scope, err)
		}
		tree, _ := normalize(data).(map[string]any)
		if tree == nil {
			tree = map[string]any{}
		}
		s.overrides[scope] = tree
	}
	s.merged = nil
	return nil
}

// SetLayer replaces one of the configuration tiers wholesale.
func (s *Store) SetLayer(tier Tier, data map[string]any) error {
	if tier < TierDefault || tier >= TierOverride {
		return fmt.Errorf("%w: %s", ErrOverrideTier, tier)
	}
	tree, _ := normalize(data).(map[string]any)
	if tree == nil {
		tree = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[tier] = tree
	s.merged = nil
	return nil
}

// Layer returns a copy of a single tier. For TierOverride the cluster and
// node scopes are combined, node winning.
func (s *Store) Layer(tier Tier) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tier == TierOverride {
		out := merge(map[string]any{}, s.overrides[ScopeCluster])
		return merge(out, s.overrides[ScopeNode]).(map[string]any)
	}
	if tier < TierDefault || tier > TierOverride {
		return map[string]any{}
	}
	return deepCopy(s.layers[tier]).(map[string]any)
}

// Override returns a copy of the overrides held for one scope.
func (s *Store) Override(scope Scope) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.overrides[scope]).(map[string]any)
}

// mergedLocked rebuilds the merged view when it is stale. The caller must
// hold the write lock or be the only user of s.
func (s *Store) mergedLocked() map[string]any {
	if s.merged != nil {
		return s.merged
	}
	var out any = map[string]any{}
	for _, layer := range s.layers {
		out = merge(out, layer)
	}
	out = merge(out, s.overrides[ScopeCluster])
	out = merge(out, s.overrides[ScopeNode])
	s.merged = out.(map[string]any)
	return s.merged
}

// Merged returns a copy of the fully merged tree.
func (s *Store) Merged() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.mergedLocked()).(map[string]any)
}

// Get resolves path through every tier. The returned value is a copy.
func (s *Store) Get(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := lookup(s.mergedLocked(), splitPath(path))
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// Has reports whether path resolves to a value.
func (s *Store) Has(path string) bool {
	_, ok := s.Get(path)
	return ok
}

// SetOverride writes value at path in the node-scoped override tier.
func (s *Store) SetOverride(path string, value any) error {
	return s.SetOverrideScoped(path, value, ScopeNode)
}

// SetOverrideScoped writes value at path in the override tier of scope and
// persists it. Writing through a list index first copies the merged list
// into the override tier, so sibling elements keep their resolved values.
func (s *Store) SetOverrideScoped(path string, value any, scope Scope) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("cannot override the attribute root")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tree, ok := s.overrides[scope]
	if !ok {
		return fmt.Errorf("unknown scope %q", scope)
	}
	persist := segs

	if n := firstListPrefix(s.mergedLocked(), segs[:len(segs)-1]); n >= 0 {
		listPath := segs[:n]
		if _, ok := lookupList(tree, listPath); !ok {
			merged, _ := lookup(s.mergedLocked(), listPath)
			copied, err := assign(tree, listPath, deepCopy(merged))
			if err != nil {
				return fmt.Errorf("failed to copy list %s: %w", joinPath(listPath), err)
			}
			tree = copied.(map[string]any)
		}
		persist = listPath
	}

	updated, err := assign(tree, segs, normalize(value))
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	s.overrides[scope] = updated.(map[string]any)
	s.merged = nil

	s.logger.Debug().
		Str("path", path).
		Str("scope", string(scope)).
		Msg("Attribute override set")

	return s.persist(scope, persist)
}

// DeleteOverride removes path from the override tier of scope. Lower tiers
// show through again afterwards.
func (s *Store) DeleteOverride(path string, scope Scope) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("cannot delete the attribute root")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tree, ok := s.overrides[scope]
	if !ok {
		return fmt.Errorf("unknown scope %q", scope)
	}

	listAt := firstListPrefix(tree, segs[:len(segs)-1])
	updated, removed := remove(tree, segs)
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	s.overrides[scope] = updated.(map[string]any)
	s.merged = nil

	if listAt >= 0 {
		return s.persist(scope, segs[:listAt])
	}
	if s.backend == nil {
		return nil
	}
	if err := s.backend.Delete(scope, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// persist saves the override value found at segs. The caller holds the lock.
func (s *Store) persist(scope Scope, segs []string) error {
	if s.backend == nil {
		return nil
	}
	path := joinPath(segs)
	value, _ := lookup(s.overrides[scope], segs)
	if err := s.backend.Save(scope, path, deepCopy(value)); err != nil {
		return fmt.Errorf("failed to persist %s: %w", path, err)
	}
	return nil
}

func lookupList(root any, segs []string) ([]any, bool) {
	v, ok := lookup(root, segs)
	if !ok {
		return nil, false
	}
	l, ok := v.([]any)
	return l, ok
}
