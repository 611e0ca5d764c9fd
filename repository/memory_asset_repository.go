package repository

import (
	"context"
	"sync"
	"time"

	"github.com/moltasthornblom/beam/model"

	"github.com/google/uuid"
)

// MemoryAssetRepository keeps assets in process memory. It backs the
// "memory" storage driver and the tests.
type MemoryAssetRepository struct {
	mu     sync.RWMutex
	assets map[string]*model.Asset
	order  []string // insertion order
	now    func() time.Time
}

// NewMemoryAssetRepository returns an empty repository.
func NewMemoryAssetRepository() *MemoryAssetRepository {
	return &MemoryAssetRepository{
		assets: make(map[string]*model.Asset),
		now:    time.Now,
	}
}

func (r *MemoryAssetRepository) Create(_ context.Context, asset *model.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.Status == "" {
		asset.Status = model.StatusProcessing
	}
	now := r.now()
	asset.CreatedAt = now
	asset.UpdatedAt = now

	r.assets[asset.ID] = asset.Clone()
	r.order = append(r.order, asset.ID)
	return nil
}

func (r *MemoryAssetRepository) FindByOwner(_ context.Context, ownerID string, limit int) ([]*model.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Asset, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		a, ok := r.assets[r.order[i]]
		if !ok || a.OwnerID != ownerID {
			continue
		}
		out = append(out, a.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryAssetRepository) FindOne(_ context.Context, id, ownerID string) (*model.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok || a.OwnerID != ownerID {
		return nil, ErrAssetNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryAssetRepository) UpdateStatus(_ context.Context, id string, status model.AssetStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return ErrAssetNotFound
	}
	if !a.Status.CanTransitionTo(status) {
		return ErrInvalidTransition
	}
	a.Status = status
	a.UpdatedAt = r.now()
	return nil
}

func (r *MemoryAssetRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[id]; !ok {
		return ErrAssetNotFound
	}
	delete(r.assets, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the asset regardless of owner. Used by tests and tooling.
func (r *MemoryAssetRepository) Get(id string) (*model.Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	return a.Clone(), ok
}
