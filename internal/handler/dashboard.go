package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProductStats struct {
	Total       int64      `json:"total"`
	Recycled    int64      `json:"recycled"`
	LastUpdated *time.Time `json:"last_updated"`
}

type BrandStats struct {
	Total       int64      `json:"total"`
	LastUpdated *time.Time `json:"last_updated"`
}

type AccountStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

type Overview struct {
	ProductStats ProductStats  `json:"product_stats"`
	BrandStats   *BrandStats   `json:"brand_stats,omitempty"`
	UserStats    *AccountStats `json:"user_stats,omitempty"`
	AdminStats   *AccountStats `json:"admin_stats,omitempty"`
}

type DashboardProfile struct {
	Avatar   string `json:"avatar"`
	UserType string `json:"user_type"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

// Overview returns catalog counts. Admins see global figures, sellers their own.
func (h *Handler) Overview(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)
	defer prometheus.TrackDBOperation("query")(time.Now())

	db := h.db.WithContext(c.Request().Context())
	owner := caller.HomeOwner()

	var overview Overview
	err := func() error {
		products := db.Model(&model.Product{})
		if !caller.IsAdmin {
			products = products.Scopes(visibility.OwnedBy(owner, ""))
		}
		if err := products.Session(&gorm.Session{}).Count(&overview.ProductStats.Total).Error; err != nil {
			return err
		}
		last, err := latestUpdate(products.Session(&gorm.Session{}).Unscoped())
		if err != nil {
			return err
		}
		overview.ProductStats.LastUpdated = last

		recycled := db.Model(&model.RecycleBin{}).
			Where("entity_type = ? AND restored_at IS NULL", model.EntityProduct)
		if !caller.IsAdmin {
			recycled = recycled.Scopes(visibility.OwnedBy(owner, ""))
		}
		if err := recycled.Count(&overview.ProductStats.Recycled).Error; err != nil {
			return err
		}

		if !caller.IsAdmin {
			return nil
		}

		overview.BrandStats = &BrandStats{}
		if err := db.Model(&model.Brand{}).Where("status = ?", model.BrandStatusActive).
			Count(&overview.BrandStats.Total).Error; err != nil {
			return err
		}
		if overview.BrandStats.LastUpdated, err = latestUpdate(db.Model(&model.Brand{})); err != nil {
			return err
		}

		if overview.UserStats, err = accountStats(db, false); err != nil {
			return err
		}
		overview.AdminStats, err = accountStats(db, true)
		return err
	}()
	if err != nil {
		log.Error("Failed to build overview", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	return response.OK(c, "ok", overview)
}

// RefreshTimestamps reports when products, brands and users last changed
func (h *Handler) RefreshTimestamps(c echo.Context) error {
	log := logger.FromContext(c)
	db := h.db.WithContext(c.Request().Context())

	result := map[string]*time.Time{}
	for key, m := range map[string]interface{}{
		"products_updated_at": &model.Product{},
		"brands_updated_at":   &model.Brand{},
		"users_updated_at":    &model.User{},
	} {
		last, err := latestUpdate(db.Model(m).Unscoped())
		if err != nil {
			log.Error("Failed to read update time", zap.String("key", key), zap.Error(err))
			return response.Fail(c, http.StatusInternalServerError, "internal server error")
		}
		result[key] = last
	}

	return response.OK(c, "ok", result)
}

// DashboardProfile returns the caller's display card
func (h *Handler) DashboardProfile(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var user model.User
	if err := h.db.WithContext(c.Request().Context()).First(&user, caller.UserID).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusNotFound, "user not found")
		}
		log.Error("Failed to load user", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	userType := visibility.OwnerSeller
	if user.IsAdmin {
		userType = "ADMIN"
	}
	return response.OK(c, "ok", DashboardProfile{
		Avatar:   user.Avatar,
		UserType: userType,
		Username: user.Username,
		Name:     user.Name,
		Phone:    user.Phone,
		Email:    user.Email,
	})
}

// Permissions lists which modules the caller may manage. ?module= narrows it to one.
func (h *Handler) Permissions(c echo.Context) error {
	caller := middleware.GetCaller(c)

	permissions := map[string]bool{
		"product_manage":     true,
		"brand_manage":       caller.IsAdmin,
		"user_manage":        caller.IsAdmin,
		"recycle_bin_manage": true,
	}
	if module := c.QueryParam("module"); module != "" {
		if allowed, ok := permissions[module]; ok {
			return response.OK(c, "ok", map[string]bool{module: allowed})
		}
	}
	return response.OK(c, "ok", permissions)
}

// latestUpdate returns the newest updated_at of query, nil for an empty table
func latestUpdate(query *gorm.DB) (*time.Time, error) {
	var row struct {
		UpdatedAt time.Time
	}
	err := query.Select("updated_at").Order("updated_at DESC").Limit(1).Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row.UpdatedAt, nil
}

func accountStats(db *gorm.DB, admins bool) (*AccountStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&model.User{}).Select("status, COUNT(*) AS count").
		Where("is_admin = ?", admins).Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &AccountStats{}
	for _, r := range rows {
		stats.Total += r.Count
		switch r.Status {
		case model.UserStatusActive:
			stats.Active = r.Count
		case model.UserStatusInactive:
			stats.Inactive = r.Count
		}
	}
	return stats, nil
}
