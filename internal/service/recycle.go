package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const MaxBatchSize = 100

const (
	RecycleStatusActive   = "active"
	RecycleStatusRestored = "restored"
	RecycleStatusAll      = "all"
)

var recycleSortColumns = map[string]string{
	"name":         "p.name",
	"brand_name":   "b.name",
	"product_code": "p.product_code",
	"deleted_at":   "rb.deleted_at",
}

// RecycleService moves products between the catalog and the recycle bin.
// A product is ACTIVE, RECYCLED (deleted_at set plus an open tombstone) or PURGED.
type RecycleService struct {
	db    *gorm.DB
	files FileStore
	now   func() time.Time
}

func NewRecycleService(db *gorm.DB, files FileStore) *RecycleService {
	return &RecycleService{db: db, files: files, now: time.Now}
}

// RecycleQuery filters the recycle bin listing
type RecycleQuery struct {
	Keyword   string
	BrandID   uint
	Status    string
	SortField string
	SortOrder string
	Page      int
	PageSize  int
}

// RecycleItem is a tombstone joined with the product it refers to
type RecycleItem struct {
	ID          uint       `json:"id"`
	EntityType  string     `json:"entity_type"`
	EntityID    uint       `json:"entity_id"`
	OwnerType   string     `json:"owner_type"`
	OwnerID     *uint      `json:"owner_id"`
	DeletedBy   *uint      `json:"deleted_by"`
	DeletedAt   time.Time  `json:"deleted_at"`
	RestoredBy  *uint      `json:"restored_by"`
	RestoredAt  *time.Time `json:"restored_at"`
	Name        string     `json:"name"`
	ProductCode string     `json:"product_code"`
	BrandID     *uint      `json:"brand_id"`
	BrandName   *string    `json:"brand_name"`
}

// BatchResult summarizes a batch restore or purge
type BatchResult struct {
	Total     int    `json:"total"`
	Success   int    `json:"success"`
	Failed    int    `json:"failed"`
	FailedIDs []uint `json:"failed_ids"`
}

// Recycle soft-deletes a product and records a tombstone for it
func (s *RecycleService) Recycle(ctx context.Context, caller visibility.Caller, productID uint, confirm bool) (*model.RecycleBin, error) {
	if !confirm {
		return nil, Invalid("confirmation is required")
	}

	var bin *model.RecycleBin
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.Unscoped().First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("product not found")
			}
			return err
		}
		if !visibility.CanMutate(caller, product.Owner()) {
			return Forbidden("no permission to delete this product")
		}

		var open int64
		if err := tx.Model(&model.RecycleBin{}).
			Where("entity_type = ? AND entity_id = ? AND restored_at IS NULL", model.EntityProduct, product.ID).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 || product.DeletedAt.Valid {
			return Conflict("product is already in the recycle bin")
		}

		now := s.now()
		ownerType, ownerID := product.Owner().Columns()
		deletedBy := caller.UserID
		bin = &model.RecycleBin{
			EntityType: model.EntityProduct,
			EntityID:   product.ID,
			OwnerType:  ownerType,
			OwnerID:    ownerID,
			DeletedBy:  &deletedBy,
			DeletedAt:  now,
		}
		if err := tx.Create(bin).Error; err != nil {
			return fmt.Errorf("create tombstone: %w", err)
		}
		return tx.Model(&model.Product{}).Where("id = ?", product.ID).Update("deleted_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return bin, nil
}

// Restore brings a recycled product back. The tombstone is kept and marked restored.
func (s *RecycleService) Restore(ctx context.Context, caller visibility.Caller, binID uint, confirm bool) error {
	if !confirm {
		return Invalid("confirmation is required")
	}
	return s.restore(ctx, caller, binID)
}

func (s *RecycleService) restore(ctx context.Context, caller visibility.Caller, binID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bin, err := loadTombstone(tx, caller, binID)
		if err != nil {
			return err
		}

		var product model.Product
		if err := tx.Unscoped().First(&product, bin.EntityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("product not found")
			}
			return err
		}
		if product.ProductCode != "" {
			var clash int64
			if err := tx.Model(&model.Product{}).
				Scopes(visibility.OwnedBy(product.Owner(), "")).
				Where("product_code = ? AND id <> ?", product.ProductCode, product.ID).
				Count(&clash).Error; err != nil {
				return err
			}
			if clash > 0 {
				return Conflict("an active product with the same product code exists")
			}
		}

		if err := tx.Unscoped().Model(&model.Product{}).Where("id = ?", product.ID).
			Update("deleted_at", nil).Error; err != nil {
			return err
		}
		return markRestored(tx, bin.ID, caller.UserID, s.now())
	})
}

// markRestored closes an open tombstone. A tombstone restored by someone else
// in the meantime is a conflict.
func markRestored(tx *gorm.DB, binID, userID uint, at time.Time) error {
	result := tx.Model(&model.RecycleBin{}).
		Where("id = ? AND restored_at IS NULL", binID).
		Updates(map[string]interface{}{
			"restored_by": userID,
			"restored_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return Conflict("entry has already been restored")
	}
	return nil
}

// Purge permanently removes a recycled product with its price tiers and attachments
func (s *RecycleService) Purge(ctx context.Context, caller visibility.Caller, binID uint, confirm bool) error {
	if !confirm {
		return Invalid("confirmation is required")
	}
	return s.purge(ctx, caller, binID)
}

func (s *RecycleService) purge(ctx context.Context, caller visibility.Caller, binID uint) error {
	var paths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bin, err := loadTombstone(tx, caller, binID)
		if err != nil {
			return err
		}
		if paths, err = purgeProduct(tx, bin.EntityID); err != nil {
			return err
		}
		return tx.Delete(&model.RecycleBin{}, bin.ID).Error
	})
	if err != nil {
		return err
	}

	removeFiles(ctx, s.files, paths)
	return nil
}

// PurgeProduct hard-deletes a product whether or not it is in the recycle bin.
// Tombstones that refer to it are removed too.
func (s *RecycleService) PurgeProduct(ctx context.Context, caller visibility.Caller, productID uint) error {
	var paths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.Unscoped().First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("product not found")
			}
			return err
		}
		if !visibility.CanMutate(caller, product.Owner()) {
			return Forbidden("no permission to delete this product")
		}

		var err error
		if paths, err = purgeProduct(tx, product.ID); err != nil {
			return err
		}
		return tx.Where("entity_type = ? AND entity_id = ?", model.EntityProduct, product.ID).
			Delete(&model.RecycleBin{}).Error
	})
	if err != nil {
		return err
	}

	removeFiles(ctx, s.files, paths)
	return nil
}

// BatchRestore restores each id in its own transaction. Ids the caller may
// not restore are counted as failed.
func (s *RecycleService) BatchRestore(ctx context.Context, caller visibility.Caller, ids []uint, confirm bool) (*BatchResult, error) {
	return s.batch(ctx, caller, ids, confirm, "restore", s.restore)
}

// BatchPurge purges each id in its own transaction
func (s *RecycleService) BatchPurge(ctx context.Context, caller visibility.Caller, ids []uint, confirm bool) (*BatchResult, error) {
	return s.batch(ctx, caller, ids, confirm, "purge", s.purge)
}

func (s *RecycleService) batch(ctx context.Context, caller visibility.Caller, ids []uint, confirm bool, op string,
	fn func(context.Context, visibility.Caller, uint) error) (*BatchResult, error) {
	if !confirm {
		return nil, Invalid("confirmation is required")
	}
	if len(ids) == 0 {
		return nil, Invalid("ids must not be empty")
	}
	if len(ids) > MaxBatchSize {
		return nil, Invalid(fmt.Sprintf("at most %d ids per batch", MaxBatchSize))
	}

	log := logger.Ctx(ctx)
	result := &BatchResult{Total: len(ids), FailedIDs: []uint{}}
	for _, id := range ids {
		err := fn(ctx, caller, id)
		if err == nil {
			result.Success++
			continue
		}

		result.Failed++
		result.FailedIDs = append(result.FailedIDs, id)
		var svcErr *Error
		if errors.As(err, &svcErr) {
			log.Info("Skipped recycle bin entry", zap.String("operation", op), zap.Uint("id", id), zap.String("reason", svcErr.Message))
		} else {
			log.Error("Failed to process recycle bin entry", zap.String("operation", op), zap.Uint("id", id), zap.Error(err))
		}
	}
	return result, nil
}

// List returns the caller's tombstones. Admins see company tombstones, sellers their own.
func (s *RecycleService) List(ctx context.Context, caller visibility.Caller, q RecycleQuery) ([]RecycleItem, PageMeta, error) {
	page := NewPage(q.Page, q.PageSize, 10)

	base := s.db.WithContext(ctx).Table("recycle_bin AS rb").
		Joins("JOIN products p ON p.id = rb.entity_id").
		Joins("LEFT JOIN brands b ON b.id = p.brand_id").
		Where("rb.entity_type = ?", model.EntityProduct).
		Scopes(visibility.OwnedBy(caller.HomeOwner(), "rb"))

	switch q.Status {
	case "", RecycleStatusActive:
		base = base.Where("rb.restored_at IS NULL")
	case RecycleStatusRestored:
		base = base.Where("rb.restored_at IS NOT NULL")
	case RecycleStatusAll:
	default:
		return nil, PageMeta{}, Invalid("status must be one of active, restored, all")
	}

	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		base = base.Where("(LOWER(p.name) LIKE LOWER(?) OR p.product_code = ?)", "%"+kw+"%", kw)
	}
	if q.BrandID != 0 {
		base = base.Where("p.brand_id = ?", q.BrandID)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, PageMeta{}, err
	}

	sortColumn, ok := recycleSortColumns[q.SortField]
	if !ok {
		sortColumn = "rb.deleted_at"
	}

	items := []RecycleItem{}
	err := base.Session(&gorm.Session{}).
		Select("rb.id, rb.entity_type, rb.entity_id, rb.owner_type, rb.owner_id, rb.deleted_by, rb.deleted_at, " +
			"rb.restored_by, rb.restored_at, p.name AS name, p.product_code AS product_code, p.brand_id AS brand_id, b.name AS brand_name").
		Order(sortColumn + " " + SortOrder(q.SortOrder)).
		Order("rb.id DESC").
		Limit(page.Size).
		Offset(page.Offset()).
		Scan(&items).Error
	if err != nil {
		return nil, PageMeta{}, err
	}
	return items, page.Meta(total), nil
}

// loadTombstone locks and loads an open tombstone the caller may act on
func loadTombstone(tx *gorm.DB, caller visibility.Caller, binID uint) (*model.RecycleBin, error) {
	var bin model.RecycleBin
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&bin, binID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("recycle bin entry not found")
		}
		return nil, err
	}
	if !visibility.CanMutate(caller, bin.Owner()) {
		return nil, Forbidden("no permission for this recycle bin entry")
	}
	if bin.IsRestored() {
		return nil, Conflict("entry has already been restored")
	}
	return &bin, nil
}

// purgeProduct deletes a product row with its dependents and returns the
// attachment files to remove once the transaction commits.
func purgeProduct(tx *gorm.DB, productID uint) ([]string, error) {
	var attachments []model.Attachment
	if err := tx.Where("entity_type = ? AND entity_id = ?", model.EntityProduct, productID).
		Find(&attachments).Error; err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(attachments))
	for _, a := range attachments {
		paths = append(paths, a.FilePath)
	}

	if err := tx.Where("entity_type = ? AND entity_id = ?", model.EntityProduct, productID).
		Delete(&model.Attachment{}).Error; err != nil {
		return nil, fmt.Errorf("delete attachments: %w", err)
	}
	if err := tx.Where("product_id = ?", productID).Delete(&model.PriceTier{}).Error; err != nil {
		return nil, fmt.Errorf("delete price tiers: %w", err)
	}
	if err := tx.Unscoped().Delete(&model.Product{}, productID).Error; err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	return paths, nil
}
