package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttachmentService binds uploaded files to products, brands and users
type AttachmentService struct {
	db    *gorm.DB
	files FileStore
}

func NewAttachmentService(db *gorm.DB, files FileStore) *AttachmentService {
	return &AttachmentService{db: db, files: files}
}

// UploadInput describes one uploaded file and where it goes
type UploadInput struct {
	EntityType      string
	EntityID        uint
	Slot            string
	ReplaceExisting bool
	FileName        string
	Size            int64
	Content         io.Reader
}

// UploadImage stores an image for a product, brand or user slot
func (s *AttachmentService) UploadImage(ctx context.Context, caller visibility.Caller, in UploadInput) (*model.Attachment, error) {
	in.EntityType = strings.ToUpper(in.EntityType)
	if !model.IsValidEntityType(in.EntityType) {
		return nil, Invalid("entity_type must be PRODUCT, BRAND or USER")
	}
	if in.EntityType == model.EntityUser {
		if in.Slot != model.SlotAvatar && in.Slot != model.SlotQRCode {
			return nil, Invalid("slot must be avatar or qrcode for USER images")
		}
	} else {
		in.Slot = ""
	}
	return s.upload(ctx, caller, in, storage.KindImage)
}

// UploadMaterial stores the archive of a product, replacing the previous one
func (s *AttachmentService) UploadMaterial(ctx context.Context, caller visibility.Caller, in UploadInput) (*model.Attachment, error) {
	in.EntityType = strings.ToUpper(in.EntityType)
	if in.EntityType == "" {
		in.EntityType = model.EntityProduct
	}
	if in.EntityType != model.EntityProduct {
		return nil, Invalid("materials can only be attached to products")
	}
	in.Slot = ""
	return s.upload(ctx, caller, in, storage.KindMaterial)
}

func (s *AttachmentService) upload(ctx context.Context, caller visibility.Caller, in UploadInput, want storage.Kind) (*model.Attachment, error) {
	kind, err := storage.Classify(in.FileName)
	if err != nil || kind != want {
		if want == storage.KindImage {
			return nil, Invalid("only jpg, jpeg, png and gif images are accepted")
		}
		return nil, Invalid("only zip, rar and 7z archives are accepted")
	}
	if err := s.files.CheckSize(kind, in.Size); err != nil {
		return nil, TooLarge("file exceeds the size limit")
	}
	if in.EntityType == model.EntityBrand && !caller.IsAdmin {
		return nil, Forbidden("only admins can upload brand images")
	}

	webPath, err := s.files.Save(kind, filepath.Ext(in.FileName), in.Content)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	fileType := model.FileTypeImage
	if kind == storage.KindMaterial {
		fileType = model.FileTypeMaterial
	}
	createdBy := caller.UserID
	attachment := &model.Attachment{
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		FileType:   fileType,
		Slot:       in.Slot,
		FilePath:   webPath,
		FileName:   filepath.Base(in.FileName),
		FileSize:   in.Size,
		CreatedBy:  &createdBy,
	}

	var replaced []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.EntityID != 0 {
			if err := lockEntity(tx, caller, in.EntityType, in.EntityID); err != nil {
				return err
			}
			if replaces(in, fileType) {
				var err error
				if replaced, err = detachSlot(tx, in.EntityType, in.EntityID, fileType, in.Slot); err != nil {
					return err
				}
			}
		}

		if err := tx.Create(attachment).Error; err != nil {
			return fmt.Errorf("create attachment: %w", err)
		}

		if in.EntityType == model.EntityUser && in.EntityID != 0 {
			column := "avatar"
			if in.Slot == model.SlotQRCode {
				column = "wechat_qrcode"
			}
			return tx.Model(&model.User{}).Where("id = ?", in.EntityID).Update(column, webPath).Error
		}
		return nil
	})
	if err != nil {
		if rmErr := s.files.Remove(webPath); rmErr != nil {
			logger.Ctx(ctx).Warn("Failed to remove orphaned upload", zap.String("path", webPath), zap.Error(rmErr))
		}
		return nil, err
	}

	removeFiles(ctx, s.files, replaced)
	return attachment, nil
}

// Rebind moves an attachment to another entity, typically from the
// unbound placeholder id 0 to the row created after the upload.
func (s *AttachmentService) Rebind(ctx context.Context, caller visibility.Caller, id uint, entityType string, entityID uint) (*model.Attachment, error) {
	entityType = strings.ToUpper(entityType)
	if !model.IsValidEntityType(entityType) {
		return nil, Invalid("entity_type must be PRODUCT, BRAND or USER")
	}

	var attachment model.Attachment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&attachment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("attachment not found")
			}
			return err
		}
		if !ownsAttachment(caller, &attachment) {
			return Forbidden("no permission for this attachment")
		}
		if entityType == model.EntityBrand && !caller.IsAdmin {
			return Forbidden("only admins can attach files to brands")
		}
		if entityID != 0 {
			if err := lockEntity(tx, caller, entityType, entityID); err != nil {
				return err
			}
		}

		attachment.EntityType = entityType
		attachment.EntityID = entityID
		return tx.Model(&model.Attachment{}).Where("id = ?", attachment.ID).Updates(map[string]interface{}{
			"entity_type": entityType,
			"entity_id":   entityID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

// Delete removes an attachment row and then its file
func (s *AttachmentService) Delete(ctx context.Context, caller visibility.Caller, id uint) error {
	var attachment model.Attachment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&attachment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("attachment not found")
			}
			return err
		}
		if !ownsAttachment(caller, &attachment) {
			if attachment.EntityType != model.EntityProduct || attachment.EntityID == 0 {
				return Forbidden("no permission for this attachment")
			}
			if err := lockEntity(tx, caller, model.EntityProduct, attachment.EntityID); err != nil {
				return err
			}
		}
		if err := tx.Delete(&model.Attachment{}, attachment.ID).Error; err != nil {
			return err
		}
		if attachment.EntityType == model.EntityUser && attachment.Slot != "" {
			return clearUserSlot(tx, attachment.EntityID, attachment.Slot, attachment.FilePath)
		}
		return nil
	})
	if err != nil {
		return err
	}

	removeFiles(ctx, s.files, []string{attachment.FilePath})
	return nil
}

// DetachFromProduct deletes the given attachment rows of one product inside tx
// and returns their files. Ids that belong elsewhere are ignored.
func DetachFromProduct(tx *gorm.DB, productID uint, ids []uint) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var attachments []model.Attachment
	if err := tx.Where("id IN ? AND entity_type = ? AND entity_id = ?", ids, model.EntityProduct, productID).
		Find(&attachments).Error; err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, nil
	}

	paths := make([]string, 0, len(attachments))
	found := make([]uint, 0, len(attachments))
	for _, a := range attachments {
		paths = append(paths, a.FilePath)
		found = append(found, a.ID)
	}
	if err := tx.Delete(&model.Attachment{}, found).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

// BindToProduct attaches unbound uploads of caller to a product inside tx.
// Every id must name an unbound PRODUCT attachment the caller uploaded.
func BindToProduct(tx *gorm.DB, caller visibility.Caller, productID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	result := tx.Model(&model.Attachment{}).
		Where("id IN ? AND entity_type = ? AND entity_id = 0 AND created_by = ?", ids, model.EntityProduct, caller.UserID).
		Update("entity_id", productID)
	if result.Error != nil {
		return fmt.Errorf("bind attachments: %w", result.Error)
	}
	if int(result.RowsAffected) != len(ids) {
		return Invalid("attachment_ids must reference your unbound product uploads")
	}
	return nil
}

// RemoveFiles deletes files of rows removed by a committed transaction
func (s *AttachmentService) RemoveFiles(ctx context.Context, paths []string) {
	removeFiles(ctx, s.files, paths)
}

// replaces reports whether an upload supersedes the entity's current file
func replaces(in UploadInput, fileType string) bool {
	switch in.EntityType {
	case model.EntityUser, model.EntityBrand:
		return true
	case model.EntityProduct:
		return fileType == model.FileTypeMaterial || in.ReplaceExisting
	}
	return false
}

// lockEntity takes a row lock on the owning entity and checks the caller may attach to it
func lockEntity(tx *gorm.DB, caller visibility.Caller, entityType string, entityID uint) error {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})

	switch entityType {
	case model.EntityUser:
		var user model.User
		if err := locked.First(&user, entityID).Error; err != nil {
			return notFoundOr(err, "user not found")
		}
		if user.ID != caller.UserID && !caller.IsAdmin {
			return Forbidden("no permission for this user")
		}
	case model.EntityBrand:
		var brand model.Brand
		if err := locked.First(&brand, entityID).Error; err != nil {
			return notFoundOr(err, "brand not found")
		}
		if !caller.IsAdmin {
			return Forbidden("only admins can attach files to brands")
		}
	case model.EntityProduct:
		var product model.Product
		if err := locked.First(&product, entityID).Error; err != nil {
			return notFoundOr(err, "product not found")
		}
		if !visibility.CanMutate(caller, product.Owner()) {
			return Forbidden("no permission for this product")
		}
	default:
		return Invalid("unknown entity type")
	}
	return nil
}

// detachSlot deletes the rows occupying one (entity, file type, slot) key
func detachSlot(tx *gorm.DB, entityType string, entityID uint, fileType, slot string) ([]string, error) {
	query := tx.Where("entity_type = ? AND entity_id = ? AND file_type = ?", entityType, entityID, fileType)
	if entityType == model.EntityUser {
		query = query.Where("slot = ?", slot)
	}

	var current []model.Attachment
	if err := query.Session(&gorm.Session{}).Find(&current).Error; err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, nil
	}
	if err := query.Session(&gorm.Session{}).Delete(&model.Attachment{}).Error; err != nil {
		return nil, fmt.Errorf("delete replaced attachments: %w", err)
	}

	paths := make([]string, 0, len(current))
	for _, a := range current {
		paths = append(paths, a.FilePath)
	}
	return paths, nil
}

func clearUserSlot(tx *gorm.DB, userID uint, slot, filePath string) error {
	column := "avatar"
	if slot == model.SlotQRCode {
		column = "wechat_qrcode"
	}
	return tx.Model(&model.User{}).Where("id = ? AND "+column+" = ?", userID, filePath).Update(column, "").Error
}

func ownsAttachment(caller visibility.Caller, a *model.Attachment) bool {
	if caller.IsAdmin && a.EntityType != model.EntityProduct {
		return true
	}
	return a.CreatedBy != nil && *a.CreatedBy == caller.UserID
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(msg)
	}
	return err
}
