package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UpdateProfileRequest struct {
	Name    *string `json:"name" validate:"omitempty,max=100"`
	Phone   *string `json:"phone" validate:"omitempty,max=20"`
	Email   *string `json:"email" validate:"omitempty,email,max=100"`
	Company *string `json:"company" validate:"omitempty,max=100"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6,max=20"`
}

type StoreRequest struct {
	Platform string `json:"platform" validate:"required,max=50"`
	Name     string `json:"name" validate:"required,max=100"`
	URL      string `json:"url" validate:"required,weburl,max=255"`
}

type UpdateStoreRequest struct {
	Platform *string `json:"platform" validate:"omitempty,max=50"`
	Name     *string `json:"name" validate:"omitempty,max=100"`
	URL      *string `json:"url" validate:"omitempty,weburl,max=255"`
}

// GetProfile returns the caller's account with linked stores
func (h *Handler) GetProfile(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var user model.User
	if err := h.db.WithContext(c.Request().Context()).Preload("Stores").First(&user, caller.UserID).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusNotFound, "user not found")
		}
		log.Error("Failed to load profile", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if user.Stores == nil {
		user.Stores = []model.Store{}
	}

	return response.OK(c, "ok", user)
}

// UpdateProfile changes the caller's contact fields
func (h *Handler) UpdateProfile(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req UpdateProfileRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Company != nil {
		updates["company"] = *req.Company
	}
	if len(updates) == 0 {
		return response.Fail(c, http.StatusBadRequest, "at least one field is required")
	}

	db := h.db.WithContext(c.Request().Context())
	if msg, err := uniqueUserFields(db, caller.UserID, "", deref(req.Email), deref(req.Phone)); err != nil {
		log.Error("Failed to check user uniqueness", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	} else if msg != "" {
		return response.Fail(c, http.StatusConflict, msg)
	}

	updates["updated_by"] = caller.UserID
	result := db.Model(&model.User{}).Where("id = ?", caller.UserID).Updates(updates)
	if result.Error != nil {
		log.Error("Failed to update profile", zap.Error(result.Error))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if result.RowsAffected == 0 {
		return response.Fail(c, http.StatusNotFound, "user not found")
	}

	var user model.User
	if err := db.First(&user, caller.UserID).Error; err != nil {
		log.Error("Failed to reload profile", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	log.Info("Profile updated", zap.Uint("user_id", caller.UserID), zap.Int("fields", len(updates)-1))
	return response.OK(c, "profile updated", user)
}

// ChangePassword sets a new password for the caller
func (h *Handler) ChangePassword(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req ChangePasswordRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	result := h.db.WithContext(c.Request().Context()).Model(&model.User{}).Where("id = ?", caller.UserID).
		Updates(map[string]interface{}{"password": string(hashed), "updated_by": caller.UserID})
	if result.Error != nil {
		log.Error("Failed to change password", zap.Error(result.Error))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if result.RowsAffected == 0 {
		return response.Fail(c, http.StatusNotFound, "user not found")
	}

	log.Info("Password changed", zap.Uint("user_id", caller.UserID))
	return response.OK(c, "password changed", nil)
}

// ListStores returns the caller's stores
func (h *Handler) ListStores(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	stores := []model.Store{}
	err := h.db.WithContext(c.Request().Context()).
		Joins("JOIN user_stores us ON us.store_id = stores.id").
		Where("us.user_id = ?", caller.UserID).
		Order("stores.id").
		Find(&stores).Error
	if err != nil {
		log.Error("Failed to list stores", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	return response.OK(c, "ok", stores)
}

// CreateStore adds a store and links it to the caller
func (h *Handler) CreateStore(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req StoreRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	store := model.Store{Platform: req.Platform, Name: req.Name, URL: req.URL}
	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&store).Error; err != nil {
			return err
		}
		return tx.Create(&model.UserStore{UserID: caller.UserID, StoreID: store.ID}).Error
	})
	if err != nil {
		log.Error("Failed to create store", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	log.Info("Store created", zap.Uint("store_id", store.ID), zap.String("platform", store.Platform))
	return response.Created(c, "store created", store)
}

// UpdateStore edits one of the caller's stores
func (h *Handler) UpdateStore(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req UpdateStoreRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	updates := map[string]interface{}{}
	if req.Platform != nil {
		updates["platform"] = *req.Platform
	}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if len(updates) == 0 {
		return response.Fail(c, http.StatusBadRequest, "at least one field is required")
	}

	db := h.db.WithContext(c.Request().Context())
	if !h.ownsStore(db, caller.UserID, id) {
		return response.Fail(c, http.StatusNotFound, "store not found")
	}

	var store model.Store
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Store{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&store, id).Error
	})
	if err != nil {
		log.Error("Failed to update store", zap.Uint("store_id", id), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	log.Info("Store updated", zap.Uint("store_id", id))
	return response.OK(c, "store updated", store)
}

// DeleteStore unlinks and deletes one of the caller's stores
func (h *Handler) DeleteStore(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	db := h.db.WithContext(c.Request().Context())
	if !h.ownsStore(db, caller.UserID, id) {
		return response.Fail(c, http.StatusNotFound, "store not found")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("store_id = ?", id).Delete(&model.UserStore{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Store{}, id).Error
	})
	if err != nil {
		log.Error("Failed to delete store", zap.Uint("store_id", id), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	log.Info("Store deleted", zap.Uint("store_id", id))
	return response.OK(c, "store deleted", nil)
}

func (h *Handler) ownsStore(db *gorm.DB, userID, storeID uint) bool {
	var n int64
	db.Model(&model.UserStore{}).Where("user_id = ? AND store_id = ?", userID, storeID).Count(&n)
	return n > 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
