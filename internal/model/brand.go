package model

import "time"

const (
	BrandStatusActive   = "ACTIVE"
	BrandStatusInactive = "INACTIVE"
)

// Brand is a named catalog grouping referenced by products
type Brand struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Status    string    `json:"status" gorm:"type:varchar(20);not null;default:ACTIVE"`
	LogoURL   string    `json:"logo_url,omitempty" gorm:"-"`
	CreatedBy *uint     `json:"created_by,omitempty"`
	UpdatedBy *uint     `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
