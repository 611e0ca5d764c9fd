package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/moltasthornblom/beam/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrAssetNotFound is returned when no asset matches the id (and owner, where given).
	ErrAssetNotFound = errors.New("asset not found")
	// ErrInvalidTransition is returned when a status change is not processing -> ready.
	ErrInvalidTransition = errors.New("invalid asset status transition")
)

// AssetRepository persists asset records.
type AssetRepository interface {
	Create(ctx context.Context, asset *model.Asset) error
	// FindByOwner returns up to limit assets of ownerID, newest first. limit <= 0 means no limit.
	FindByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Asset, error)
	// FindOne matches both id and owner; a foreign id is indistinguishable from a missing one.
	FindOne(ctx context.Context, id, ownerID string) (*model.Asset, error)
	UpdateStatus(ctx context.Context, id string, status model.AssetStatus) error
	Delete(ctx context.Context, id string) error
}

type gormAssetRepository struct {
	db *gorm.DB
}

// NewGormAssetRepository returns an AssetRepository backed by gdb.
func NewGormAssetRepository(gdb *gorm.DB) AssetRepository {
	return &gormAssetRepository{db: gdb}
}

func (r *gormAssetRepository) Create(ctx context.Context, asset *model.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.Status == "" {
		asset.Status = model.StatusProcessing
	}
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("failed to create asset %s: %w", asset.ID, err)
	}
	return nil
}

func (r *gormAssetRepository) FindByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Asset, error) {
	var assets []*model.Asset
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to list assets for owner %s: %w", ownerID, err)
	}
	return assets, nil
}

func (r *gormAssetRepository) FindOne(ctx context.Context, id, ownerID string) (*model.Asset, error) {
	var asset model.Asset
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find asset %s: %w", id, err)
	}
	return &asset, nil
}

func (r *gormAssetRepository) UpdateStatus(ctx context.Context, id string, status model.AssetStatus) error {
	if !model.StatusProcessing.CanTransitionTo(status) {
		return ErrInvalidTransition
	}

	// Conditional update keeps the flip one-way even with concurrent writers.
	res := r.db.WithContext(ctx).Model(&model.Asset{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update status of asset %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Asset{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check asset %s: %w", id, err)
	}
	if count == 0 {
		return ErrAssetNotFound
	}
	return ErrInvalidTransition
}

func (r *gormAssetRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Asset{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete asset %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAssetNotFound
	}
	return nil
}
