// Package visibility decides which products a caller may see or change.
//
// Every listing, detail and mutation path over products goes through Scope,
// CanView or CanMutate so that the ownership rules live in one place.
package visibility

import (
	"strings"

	"gorm.io/gorm"
)

const (
	OwnerCompany = "COMPANY"
	OwnerSeller  = "SELLER"
)

// Owner is the party a product belongs to: the company, or one seller.
// The zero value is the company.
type Owner struct {
	seller   bool
	sellerID uint
}

// Company returns the company owner
func Company() Owner {
	return Owner{}
}

// Seller returns the owner for the seller with the given user id
func Seller(id uint) Owner {
	return Owner{seller: true, sellerID: id}
}

// OwnerFromColumns decodes the owner_type/owner_id column pair.
// Anything that is not a seller row with an id is treated as company owned.
func OwnerFromColumns(ownerType string, ownerID *uint) Owner {
	if ownerType == OwnerSeller && ownerID != nil {
		return Seller(*ownerID)
	}
	return Company()
}

// Columns encodes the owner into the owner_type/owner_id column pair
func (o Owner) Columns() (string, *uint) {
	if !o.seller {
		return OwnerCompany, nil
	}
	id := o.sellerID
	return OwnerSeller, &id
}

// IsCompany reports whether the owner is the company
func (o Owner) IsCompany() bool {
	return !o.seller
}

// SellerID returns the seller id and whether the owner is a seller
func (o Owner) SellerID() (uint, bool) {
	return o.sellerID, o.seller
}

// Type returns COMPANY or SELLER
func (o Owner) Type() string {
	t, _ := o.Columns()
	return t
}

// Caller is the authenticated identity a request runs as
type Caller struct {
	UserID  uint
	IsAdmin bool
}

// HomeOwner is the owner new rows get when the caller creates them:
// the company for admins, the caller themself for sellers.
func (c Caller) HomeOwner() Owner {
	if c.IsAdmin {
		return Company()
	}
	return Seller(c.UserID)
}

// Filter is the owner restriction requested by the client.
// OwnerType is empty, COMPANY or SELLER. OwnerID is only meaningful with SELLER.
type Filter struct {
	OwnerType string
	OwnerID   uint
}

// ParseOwnerType normalizes a client supplied owner type, returning "" for unknown values
func ParseOwnerType(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case OwnerCompany:
		return OwnerCompany
	case OwnerSeller:
		return OwnerSeller
	}
	return ""
}

// Scope returns a GORM scope restricting a products query to the rows caller
// may see under filter. Columns are qualified with table so the scope can be
// combined with joins.
func Scope(caller Caller, filter Filter, table string) func(*gorm.DB) *gorm.DB {
	ownerType := column(table, "owner_type")
	ownerID := column(table, "owner_id")

	return func(db *gorm.DB) *gorm.DB {
		switch filter.OwnerType {
		case OwnerCompany:
			return db.Where(ownerType+" = ?", OwnerCompany)
		case OwnerSeller:
			if caller.IsAdmin {
				if filter.OwnerID != 0 {
					return db.Where(ownerType+" = ? AND "+ownerID+" = ?", OwnerSeller, filter.OwnerID)
				}
				return db.Where(ownerType+" = ?", OwnerSeller)
			}
			if filter.OwnerID != 0 && filter.OwnerID != caller.UserID {
				return db.Where("1 = 0")
			}
			return db.Where(ownerType+" = ? AND "+ownerID+" = ?", OwnerSeller, caller.UserID)
		}

		if caller.IsAdmin {
			return db
		}
		return db.Where("("+ownerType+" = ? OR ("+ownerType+" = ? AND "+ownerID+" = ?))",
			OwnerCompany, OwnerSeller, caller.UserID)
	}
}

// OwnedBy restricts a products query to exactly one owner
func OwnedBy(owner Owner, table string) func(*gorm.DB) *gorm.DB {
	ownerType := column(table, "owner_type")
	ownerID := column(table, "owner_id")

	return func(db *gorm.DB) *gorm.DB {
		if id, ok := owner.SellerID(); ok {
			return db.Where(ownerType+" = ? AND "+ownerID+" = ?", OwnerSeller, id)
		}
		return db.Where(ownerType+" = ?", OwnerCompany)
	}
}

// CanView reports whether caller may read a row owned by owner
func CanView(caller Caller, owner Owner) bool {
	if caller.IsAdmin || owner.IsCompany() {
		return true
	}
	id, _ := owner.SellerID()
	return id == caller.UserID
}

// CanMutate reports whether caller may change a row owned by owner:
// company rows need an admin, seller rows need their seller.
func CanMutate(caller Caller, owner Owner) bool {
	if owner.IsCompany() {
		return caller.IsAdmin
	}
	id, _ := owner.SellerID()
	return id == caller.UserID
}

func column(table, name string) string {
	if table == "" {
		return name
	}
	return table + "." + name
}
