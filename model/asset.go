package model

import "time"

// AssetStatus is the visible processing state of an uploaded video.
type AssetStatus string

const (
	StatusProcessing AssetStatus = "processing"
	StatusReady      AssetStatus = "ready"
)

// Valid reports whether s is a known status.
func (s AssetStatus) Valid() bool {
	return s == StatusProcessing || s == StatusReady
}

// CanTransitionTo reports whether s may move to next. The only legal move is processing -> ready.
func (s AssetStatus) CanTransitionTo(next AssetStatus) bool {
	return s == StatusProcessing && next == StatusReady
}

// Asset represents one uploaded video and the HLS tree derived from it.
type Asset struct {
	ID             string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SourceFilename string      `gorm:"column:source_filename;type:varchar(255);not null" json:"filename"`
	OwnerID        string      `gorm:"column:owner_id;type:varchar(36);not null;index:idx_assets_owner_created,priority:1" json:"user"`
	PublicURL      string      `gorm:"column:public_url;type:varchar(767);not null" json:"url"` // Master playlist URL, fixed at creation
	Status         AssetStatus `gorm:"column:status;type:varchar(20);not null;default:processing" json:"status"`
	CreatedAt      time.Time   `gorm:"index:idx_assets_owner_created,priority:2" json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// TableName pins the table name used by gorm.
func (Asset) TableName() string {
	return "assets"
}

// Clone returns a copy that can be handed out without sharing memory.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
