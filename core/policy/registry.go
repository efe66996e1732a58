package policy

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

// Persister mirrors registry mutations to durable storage. A mutation
// that cannot be persisted does not take effect in memory.
type Persister interface {
	SavePolicy(ctx context.Context, pol *Policy) error
	DeletePolicy(ctx context.Context, id string) error
}

// Registry holds the policy set behind a copy-on-write snapshot.
// Readers load one immutable snapshot and see a consistent set for the
// whole request; writers clone the map, persist, and swap. Snapshot
// maps are never mutated after the swap.
type Registry struct {
	mu        sync.Mutex // serializes writers
	snapshot  atomic.Pointer[map[string]*Policy]
	persister Persister
	log       *zap.Logger
	now       func() time.Time
}

// NewRegistry creates an empty registry. persister may be nil for
// purely in-memory operation.
func NewRegistry(persister Persister, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		persister: persister,
		log:       log,
		now:       time.Now,
	}
	empty := make(map[string]*Policy)
	r.snapshot.Store(&empty)
	return r
}

// Load replaces the in-memory set wholesale; used at startup to hydrate
// from storage. Invalid definitions fail the load.
func (r *Registry) Load(policies []*Policy) error {
	set := make(map[string]*Policy, len(policies))
	for _, pol := range policies {
		if err := pol.Validate(); err != nil {
			return err
		}
		set[pol.ID] = pol.Clone()
	}
	r.mu.Lock()
	r.snapshot.Store(&set)
	r.mu.Unlock()
	r.log.Info("loaded policies", zap.Int("count", len(set)))
	return nil
}

// Create validates and stores a new policy. Duplicate ids are rejected
// with policy_exists.
func (r *Registry) Create(ctx context.Context, pol *Policy) (*Policy, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.snapshot.Load()
	if _, exists := current[pol.ID]; exists {
		return nil, apperrors.PolicyExists(pol.ID)
	}

	stored := pol.Clone()
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if r.persister != nil {
		if err := r.persister.SavePolicy(ctx, stored); err != nil {
			return nil, apperrors.Internal("persisting policy", err)
		}
	}

	next := make(map[string]*Policy, len(current)+1)
	for id, p := range current {
		next[id] = p
	}
	next[stored.ID] = stored
	r.snapshot.Store(&next)

	r.log.Info("created policy", zap.String("policy_id", stored.ID))
	return stored.Clone(), nil
}

// Get returns one policy by id.
func (r *Registry) Get(id string) (*Policy, error) {
	current := *r.snapshot.Load()
	pol, ok := current[id]
	if !ok {
		return nil, apperrors.PolicyNotFound(id)
	}
	return pol.Clone(), nil
}

// GetAll resolves a set of ids against a single snapshot, failing on
// the first unknown id.
func (r *Registry) GetAll(ids []string) ([]*Policy, error) {
	current := *r.snapshot.Load()
	out := make([]*Policy, 0, len(ids))
	for _, id := range ids {
		pol, ok := current[id]
		if !ok {
			return nil, apperrors.PolicyNotFound(id)
		}
		out = append(out, pol.Clone())
	}
	return out, nil
}

// List returns every policy sorted by name, then id.
func (r *Registry) List() []*Policy {
	current := *r.snapshot.Load()
	out := make([]*Policy, 0, len(current))
	for _, pol := range current {
		out = append(out, pol.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete removes a policy. Unknown ids report policy_not_found.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.snapshot.Load()
	if _, ok := current[id]; !ok {
		return apperrors.PolicyNotFound(id)
	}

	if r.persister != nil {
		if err := r.persister.DeletePolicy(ctx, id); err != nil {
			return apperrors.Internal("deleting policy", err)
		}
	}

	next := make(map[string]*Policy, len(current)-1)
	for pid, p := range current {
		if pid != id {
			next[pid] = p
		}
	}
	r.snapshot.Store(&next)

	r.log.Info("deleted policy", zap.String("policy_id", id))
	return nil
}
