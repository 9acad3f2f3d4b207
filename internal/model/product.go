package model

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"gorm.io/gorm"
)

// Product represents a catalog entry owned by the company or by one seller
type Product struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	OwnerType      string         `json:"owner_type" gorm:"type:varchar(20);not null;index"`
	OwnerID        *uint          `json:"owner_id" gorm:"index"`
	Name           string         `json:"name" gorm:"type:varchar(255);not null"`
	BrandID        *uint          `json:"brand_id" gorm:"index"`
	ProductCode    string         `json:"product_code" gorm:"type:varchar(100)"`
	Specification  string         `json:"specification" gorm:"type:text"`
	NetContent     string         `json:"net_content" gorm:"type:varchar(100)"`
	ProductSize    string         `json:"product_size" gorm:"type:varchar(100)"`
	ShippingMethod string         `json:"shipping_method" gorm:"type:varchar(100)"`
	ShippingSpec   string         `json:"shipping_spec" gorm:"type:varchar(100)"`
	ShippingSize   string         `json:"shipping_size" gorm:"type:varchar(100)"`
	ProductURL     string         `json:"product_url" gorm:"column:product_url;type:varchar(255)"`
	CreatedBy      *uint          `json:"created_by,omitempty"`
	UpdatedBy      *uint          `json:"updated_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	Brand       *Brand       `json:"brand,omitempty" gorm:"foreignKey:BrandID"`
	PriceTiers  []PriceTier  `json:"price_tiers" gorm:"foreignKey:ProductID"`
	Attachments []Attachment `json:"attachments" gorm:"polymorphic:Entity;polymorphicValue:PRODUCT"`
}

// Owner returns the owner variant stored in the owner_type/owner_id columns
func (p *Product) Owner() visibility.Owner {
	return visibility.OwnerFromColumns(p.OwnerType, p.OwnerID)
}

// SetOwner writes the owner variant into the owner_type/owner_id columns
func (p *Product) SetOwner(o visibility.Owner) {
	p.OwnerType, p.OwnerID = o.Columns()
}

// PriceTier is a (quantity, price) pair attached to one product
type PriceTier struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	ProductID uint            `json:"product_id" gorm:"not null;index"`
	Quantity  string          `json:"quantity" gorm:"type:varchar(50);not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	CreatedBy *uint           `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
