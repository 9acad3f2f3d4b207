package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

type StaticPageRequest struct {
	Content string `json:"content"`
}

// GetStaticPage returns a content page. Unset pages come back empty.
func (h *Handler) GetStaticPage(c echo.Context) error {
	log := logger.FromContext(c)

	pageType := c.Param("type")
	if !model.IsValidStaticPageType(pageType) {
		return response.Fail(c, http.StatusBadRequest, "unknown page type")
	}

	var page model.StaticPage
	err := h.db.WithContext(c.Request().Context()).Where("page_type = ?", pageType).First(&page).Error
	if isNotFound(err) {
		return response.OK(c, "ok", model.StaticPage{PageType: pageType})
	}
	if err != nil {
		log.Error("Failed to load static page", zap.String("page_type", pageType), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	return response.OK(c, "ok", page)
}

// SaveStaticPage creates or replaces a content page
func (h *Handler) SaveStaticPage(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	pageType := c.Param("type")
	if !model.IsValidStaticPageType(pageType) {
		return response.Fail(c, http.StatusBadRequest, "unknown page type")
	}

	var req StaticPageRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	db := h.db.WithContext(c.Request().Context())
	page := model.StaticPage{PageType: pageType, Content: req.Content, UpdatedBy: &caller.UserID}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "page_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_by", "updated_at"}),
	}).Create(&page).Error
	if err != nil {
		log.Error("Failed to save static page", zap.String("page_type", pageType), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if err := db.Where("page_type = ?", pageType).First(&page).Error; err != nil {
		log.Error("Failed to reload static page", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	log.Info("Static page saved", zap.String("page_type", pageType), zap.Int("length", len(req.Content)))
	return response.OK(c, "page saved", page)
}
