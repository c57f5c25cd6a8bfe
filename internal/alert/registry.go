package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crypto-alerts/internal/market"
)

// Store persists alert definitions.
type Store interface {
	InsertAlert(ctx context.Context, def Definition) error
	GetAlert(ctx context.Context, id string) (Definition, error)
	ListAlerts(ctx context.Context, owner string, filter ListFilter) ([]Definition, error)
	ListActiveAlerts(ctx context.Context) ([]Definition, error)
	DeleteAlert(ctx context.Context, id string) error
	UpdateAlert(ctx context.Context, id string, patch Patch) error
}

// PriceReader returns the latest observation per symbol. Symbols without
// observations are absent from the result.
type PriceReader interface {
	Latest(ctx context.Context, symbols []string) (map[string]market.Observation, error)
}

// Registry owns alert definitions. Updates to the same id are serialized.
type Registry struct {
	store  Store
	prices PriceReader
	ids    IDGenerator
	now    func() time.Time
	locks  keyedMutex
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry wires a registry over store.
func NewRegistry(store Store, prices PriceReader, ids IDGenerator, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		prices: prices,
		ids:    ids,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates p, seeds baselines from the latest observations and
// persists the new alert.
func (r *Registry) Create(ctx context.Context, p CreateParams) (Definition, error) {
	params, err := p.normalize()
	if err != nil {
		return Definition{}, err
	}

	latest, err := r.prices.Latest(ctx, params.Symbols)
	if err != nil {
		return Definition{}, fmt.Errorf("seed baseline prices: %w", err)
	}
	baselines := make(map[string]float64, len(params.Symbols))
	for _, symbol := range params.Symbols {
		// Zero marks "no price yet"; the evaluator skips zero baselines.
		baselines[symbol] = latest[symbol].PriceUSD
	}

	def := Definition{
		ID:              r.ids.NewID(),
		Owner:           params.Owner,
		Symbols:         params.Symbols,
		Kind:            params.Kind,
		Condition:       params.Condition,
		Value:           params.Value,
		Active:          true,
		CreatedAt:       r.now().UTC(),
		LastKnownPrices: baselines,
	}
	if err := r.store.InsertAlert(ctx, def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Get returns one alert or a *NotFoundError.
func (r *Registry) Get(ctx context.Context, id string) (Definition, error) {
	return r.store.GetAlert(ctx, strings.TrimSpace(id))
}

// List returns the owner's alerts, oldest first.
func (r *Registry) List(ctx context.Context, owner string, filter ListFilter) ([]Definition, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, &ValidationError{Field: "owner", Reason: "must not be empty"}
	}
	return r.store.ListAlerts(ctx, owner, filter)
}

// Active returns every active alert across owners.
func (r *Registry) Active(ctx context.Context) ([]Definition, error) {
	return r.store.ListActiveAlerts(ctx)
}

// Delete removes an alert. Unknown ids are not an error.
func (r *Registry) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	unlock := r.locks.lock(id)
	defer unlock()
	return r.store.DeleteAlert(ctx, id)
}

// Update changes only the fields present in patch and returns the result.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) (Definition, error) {
	id = strings.TrimSpace(id)
	unlock := r.locks.lock(id)
	defer unlock()

	current, err := r.store.GetAlert(ctx, id)
	if err != nil {
		return Definition{}, err
	}
	if patch.IsEmpty() {
		return current, nil
	}
	if patch.Value != nil {
		if err := validateValue(current.Kind, *patch.Value); err != nil {
			return Definition{}, err
		}
	}
	if err := r.store.UpdateAlert(ctx, id, patch); err != nil {
		return Definition{}, err
	}
	return current.Apply(patch), nil
}

// Apply persists an evaluator mutation.
func (r *Registry) Apply(ctx context.Context, id string, m Mutation) error {
	_, err := r.Update(ctx, id, m.Patch())
	return err
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
