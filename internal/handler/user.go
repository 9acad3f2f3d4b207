package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is assigned to accounts created or reset by an admin
const DefaultPassword = "123456"

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=4,max=20"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	IsAdmin  bool   `json:"is_admin"`
}

type UpdateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=4,max=20"`
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
	Email    *string `json:"email" validate:"omitempty,email,max=100"`
	Company  *string `json:"company" validate:"omitempty,max=100"`
	IsAdmin  *bool   `json:"is_admin"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6,max=20"`
}

type UserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

type LinkStoresRequest struct {
	StoreIDs []uint `json:"store_ids" validate:"required,min=1"`
}

type BatchUserRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,max=100"`
}

// ListUsers lists accounts with optional filters
func (h *Handler) ListUsers(c echo.Context) error {
	log := logger.FromContext(c)
	page := service.NewPage(queryInt(c, "page", 1), queryInt(c, "page_size", service.DefaultPageSize), 1)

	query := h.db.WithContext(c.Request().Context()).Model(&model.User{})
	for _, col := range []string{"username", "name", "phone", "email"} {
		if v := strings.TrimSpace(c.QueryParam(col)); v != "" {
			query = query.Where("LOWER("+col+") LIKE LOWER(?)", "%"+v+"%")
		}
	}
	if v := c.QueryParam("is_admin"); v != "" {
		if isAdmin, err := strconv.ParseBool(v); err == nil {
			query = query.Where("is_admin = ?", isAdmin)
		}
	}
	if v := strings.ToUpper(c.QueryParam("status")); v != "" {
		query = query.Where("status = ?", v)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		log.Error("Failed to count users", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	users := []model.User{}
	if err := query.Session(&gorm.Session{}).Preload("Stores").
		Order("id DESC").Limit(page.Size).Offset(page.Offset()).
		Find(&users).Error; err != nil {
		log.Error("Failed to list users", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	return response.OK(c, "ok", listResult{Items: users, Meta: page.Meta(total)})
}

// CreateUser adds an account with the default password
func (h *Handler) CreateUser(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req CreateUserRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	db := h.db.WithContext(c.Request().Context())
	if msg, err := uniqueUserFields(db, 0, req.Username, "", ""); err != nil {
		log.Error("Failed to check user uniqueness", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	} else if msg != "" {
		return response.Fail(c, http.StatusConflict, msg)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	user := model.User{
		Username:  req.Username,
		Password:  string(hashed),
		Name:      req.Name,
		IsAdmin:   req.IsAdmin,
		Status:    model.UserStatusActive,
		CreatedBy: &caller.UserID,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Error("Failed to create user", zap.String("username", req.Username), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordUserOperation("create")
	log.Info("User created", zap.Uint("user_id", user.ID), zap.Bool("is_admin", user.IsAdmin))
	return response.Created(c, "user created", user)
}

// UpdateUser edits account fields including the admin flag
func (h *Handler) UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req UpdateUserRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	db := h.db.WithContext(c.Request().Context())
	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusNotFound, "user not found")
		}
		log.Error("Failed to load user", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	if msg, err := uniqueUserFields(db, id, deref(req.Username), deref(req.Email), deref(req.Phone)); err != nil {
		log.Error("Failed to check user uniqueness", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	} else if msg != "" {
		return response.Fail(c, http.StatusConflict, msg)
	}

	updates := map[string]interface{}{}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
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
	if req.IsAdmin != nil {
		if id == caller.UserID && !*req.IsAdmin {
			return response.Fail(c, http.StatusForbidden, "cannot revoke your own admin role")
		}
		updates["is_admin"] = *req.IsAdmin
	}
	if len(updates) == 0 {
		return response.OK(c, "no changes", user)
	}
	updates["updated_by"] = caller.UserID

	if err := db.Model(&user).Updates(updates).Error; err != nil {
		log.Error("Failed to update user", zap.Uint("user_id", id), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if err := db.First(&user, id).Error; err != nil {
		log.Error("Failed to reload user", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordUserOperation("update")
	log.Info("User updated", zap.Uint("user_id", id), zap.Int("fields", len(updates)-1))
	return response.OK(c, "user updated", user)
}

// ResetUserPassword sets a new password for any account
func (h *Handler) ResetUserPassword(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req ResetPasswordRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	result := h.db.WithContext(c.Request().Context()).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"password": string(hashed), "updated_by": caller.UserID})
	if result.Error != nil {
		log.Error("Failed to reset password", zap.Uint("user_id", id), zap.Error(result.Error))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if result.RowsAffected == 0 {
		return response.Fail(c, http.StatusNotFound, "user not found")
	}

	prometheus.RecordUserOperation("reset_password")
	log.Info("User password reset", zap.Uint("user_id", id))
	return response.OK(c, "password updated", nil)
}

// UpdateUserStatus activates or deactivates an account other than the caller's
func (h *Handler) UpdateUserStatus(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}
	if id == caller.UserID {
		return response.Fail(c, http.StatusForbidden, "cannot change your own status")
	}

	var req UserStatusRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	result := h.db.WithContext(c.Request().Context()).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": req.Status, "updated_by": caller.UserID})
	if result.Error != nil {
		log.Error("Failed to update user status", zap.Uint("user_id", id), zap.Error(result.Error))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if result.RowsAffected == 0 {
		return response.Fail(c, http.StatusNotFound, "user not found")
	}

	prometheus.RecordUserOperation("status")
	log.Info("User status changed", zap.Uint("user_id", id), zap.String("status", req.Status))
	return response.OK(c, "status updated", echo.Map{"id": id, "status": req.Status})
}

// LinkUserStores links existing stores to an account. Existing links are kept.
func (h *Handler) LinkUserStores(c echo.Context) error {
	log := logger.FromContext(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req LinkStoresRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	db := h.db.WithContext(c.Request().Context())
	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusNotFound, "user not found")
		}
		log.Error("Failed to load user", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	ids := uniqueIDs(req.StoreIDs)
	var stores []model.Store
	if err := db.Where("id IN ?", ids).Find(&stores).Error; err != nil {
		log.Error("Failed to load stores", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if len(stores) != len(ids) {
		return response.Fail(c, http.StatusBadRequest, "some stores do not exist")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, storeID := range ids {
			link := model.UserStore{UserID: id, StoreID: storeID}
			if err := tx.Where(&link).FirstOrCreate(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to link stores", zap.Uint("user_id", id), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	log.Info("Stores linked", zap.Uint("user_id", id), zap.Int("count", len(ids)))
	return response.OK(c, "stores linked", echo.Map{"user_id": id, "stores": stores})
}

// BatchResetPassword resets up to 100 accounts to the default password
func (h *Handler) BatchResetPassword(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req BatchUserRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	ids := uniqueIDs(req.UserIDs)
	db := h.db.WithContext(c.Request().Context())

	var found int64
	if err := db.Model(&model.User{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
		log.Error("Failed to count users", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if int(found) != len(ids) {
		return response.Fail(c, http.StatusBadRequest, "some users do not exist")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	if err := db.Model(&model.User{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{"password": string(hashed), "updated_by": caller.UserID}).Error; err != nil {
		log.Error("Failed to reset passwords", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordUserOperation("batch_reset_password")
	log.Info("Passwords reset", zap.Int("count", len(ids)))
	return response.OK(c, fmt.Sprintf("%d passwords reset", len(ids)), echo.Map{"user_ids": ids})
}

// DeleteUser hard-deletes an account. Audit references to it are cleared and
// its shares, visit logs, tokens and store links are removed.
func (h *Handler) DeleteUser(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}
	if id == caller.UserID {
		return response.Fail(c, http.StatusForbidden, "cannot delete your own account")
	}

	var files []string
	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, id).Error; err != nil {
			if isNotFound(err) {
				return service.NotFound("user not found")
			}
			return err
		}

		var owned int64
		if err := tx.Unscoped().Model(&model.Product{}).
			Where("owner_type = ? AND owner_id = ?", visibility.OwnerSeller, id).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return service.Conflict("user still owns products")
		}

		var shareIDs []uint
		if err := tx.Model(&model.PalletShare{}).Where("user_id = ?", id).Pluck("id", &shareIDs).Error; err != nil {
			return err
		}
		if len(shareIDs) > 0 {
			if err := tx.Where("share_id IN ?", shareIDs).Delete(&model.CustomerLog{}).Error; err != nil {
				return err
			}
		}

		var slots []model.Attachment
		if err := tx.Where("entity_type = ? AND entity_id = ?", model.EntityUser, id).Find(&slots).Error; err != nil {
			return err
		}
		for _, a := range slots {
			files = append(files, a.FilePath)
		}

		deletes := []struct {
			model interface{}
			where string
		}{
			{&model.PalletShare{}, "user_id = ?"},
			{&model.RefreshToken{}, "user_id = ?"},
			{&model.AccessLog{}, "user_id = ?"},
			{&model.UserStore{}, "user_id = ?"},
			{&model.Attachment{}, "entity_type = 'USER' AND entity_id = ?"},
		}
		for _, d := range deletes {
			if err := tx.Where(d.where, id).Delete(d.model).Error; err != nil {
				return err
			}
		}

		nullify := []struct {
			table, column string
		}{
			{"recycle_bin", "deleted_by"},
			{"recycle_bin", "restored_by"},
			{"attachments", "created_by"},
			{"users", "created_by"},
			{"users", "updated_by"},
			{"brands", "created_by"},
			{"brands", "updated_by"},
			{"products", "created_by"},
			{"products", "updated_by"},
			{"price_tiers", "created_by"},
			{"static_pages", "updated_by"},
		}
		for _, n := range nullify {
			if err := tx.Table(n.table).Where(n.column+" = ?", id).Update(n.column, nil).Error; err != nil {
				return fmt.Errorf("clear %s.%s: %w", n.table, n.column, err)
			}
		}

		return tx.Delete(&model.User{}, id).Error
	})
	if err != nil {
		return fail(c, log, err, "Delete user")
	}

	h.attachments.RemoveFiles(c.Request().Context(), files)

	prometheus.RecordUserOperation("delete")
	log.Info("User deleted", zap.Uint("user_id", id))
	return response.OK(c, "user deleted", echo.Map{"id": id})
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
