package model

import (
	"time"

	"github.com/suteetoe/pallet-service/internal/visibility"
)

// RecycleBin is a tombstone for a soft-deleted entity. It is kept after a restore.
type RecycleBin struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	EntityType string     `json:"entity_type" gorm:"type:varchar(20);not null;index:idx_recycle_entity"`
	EntityID   uint       `json:"entity_id" gorm:"not null;index:idx_recycle_entity"`
	OwnerType  string     `json:"owner_type" gorm:"type:varchar(20);not null"`
	OwnerID    *uint      `json:"owner_id"`
	DeletedBy  *uint      `json:"deleted_by"`
	DeletedAt  time.Time  `json:"deleted_at" gorm:"not null"`
	RestoredBy *uint      `json:"restored_by"`
	RestoredAt *time.Time `json:"restored_at"`
}

// TableName pins the table name, GORM would pluralize it
func (RecycleBin) TableName() string {
	return "recycle_bin"
}

// Owner returns the owner recorded at recycle time
func (r *RecycleBin) Owner() visibility.Owner {
	return visibility.OwnerFromColumns(r.OwnerType, r.OwnerID)
}

// IsRestored reports whether the tombstone has been closed by a restore
func (r *RecycleBin) IsRestored() bool {
	return r.RestoredAt != nil
}
