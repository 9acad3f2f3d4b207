// Package testutil builds migrated sqlite databases and seed rows for tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/database"
	"github.com/suteetoe/pallet-service/pkg/storage"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seq atomic.Int64

// NewDB returns a migrated sqlite database living in t.TempDir()
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "pallet_test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts an active user with password "secret1"
func CreateUser(t *testing.T, db *gorm.DB, username string, isAdmin bool) *model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)

	u := &model.User{
		Username: username,
		Password: string(hash),
		Name:     username,
		IsAdmin:  isAdmin,
		Status:   model.UserStatusActive,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateBrand inserts an active brand
func CreateBrand(t *testing.T, db *gorm.DB, name string) *model.Brand {
	t.Helper()

	b := &model.Brand{Name: name, Status: model.BrandStatusActive}
	require.NoError(t, db.Create(b).Error)
	return b
}

// CreateProduct inserts a product owned by owner with a unique product code
func CreateProduct(t *testing.T, db *gorm.DB, name string, owner visibility.Owner) *model.Product {
	t.Helper()

	p := &model.Product{
		Name:        name,
		ProductCode: fmt.Sprintf("P-%d", seq.Add(1)),
	}
	p.SetOwner(owner)
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreatePriceTier adds a price tier to product
func CreatePriceTier(t *testing.T, db *gorm.DB, productID uint, quantity string, price string) *model.PriceTier {
	t.Helper()

	pt := &model.PriceTier{ProductID: productID, Quantity: quantity, Price: decimal.RequireFromString(price)}
	require.NoError(t, db.Create(pt).Error)
	return pt
}

// ProductIDs returns the ids of products
func ProductIDs(products []model.Product) []uint {
	ids := make([]uint, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

// NewStorage returns an uploads tree in t.TempDir() with 1 MiB image and 4 MiB material limits
func NewStorage(t *testing.T) *storage.Local {
	t.Helper()

	files, err := storage.NewLocal(t.TempDir(), 1<<20, 4<<20)
	require.NoError(t, err)
	return files
}

// CreateAttachment writes a small image file and binds it to (entityType, entityID)
func CreateAttachment(t *testing.T, db *gorm.DB, files *storage.Local, entityType string, entityID uint) *model.Attachment {
	t.Helper()

	webPath, err := files.Save(storage.KindImage, ".png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)

	a := &model.Attachment{
		EntityType: entityType,
		EntityID:   entityID,
		FileType:   model.FileTypeImage,
		FilePath:   webPath,
		FileName:   "seed.png",
		FileSize:   3,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}
