package model

import "time"

const (
	EntityProduct = "PRODUCT"
	EntityBrand   = "BRAND"
	EntityUser    = "USER"

	FileTypeImage    = "IMAGE"
	FileTypeMaterial = "MATERIAL"

	SlotAvatar = "avatar"
	SlotQRCode = "qrcode"
)

// Attachment is an uploaded file bound to an (entity_type, entity_id) pair.
// EntityID 0 means the owning row does not exist yet.
type Attachment struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	EntityType string    `json:"entity_type" gorm:"type:varchar(20);not null;index:idx_attachments_entity"`
	EntityID   uint      `json:"entity_id" gorm:"not null;index:idx_attachments_entity"`
	FileType   string    `json:"file_type" gorm:"type:varchar(20);not null"`
	Slot       string    `json:"slot,omitempty" gorm:"type:varchar(20);not null;default:''"`
	FilePath   string    `json:"file_path" gorm:"type:varchar(255);not null"`
	FileName   string    `json:"file_name" gorm:"type:varchar(255)"`
	FileSize   int64     `json:"file_size"`
	CreatedBy  *uint     `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsValidEntityType reports whether t names an entity attachments can bind to
func IsValidEntityType(t string) bool {
	return t == EntityProduct || t == EntityBrand || t == EntityUser
}
