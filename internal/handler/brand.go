package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type BrandRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	Status string `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

type UpdateBrandRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=100"`
	Status *string `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

type BrandStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

var brandSortFields = map[string]bool{
	"name":       true,
	"status":     true,
	"updated_at": true,
	"created_at": true,
}

// ListBrands lists brands with their current logo
func (h *Handler) ListBrands(c echo.Context) error {
	log := logger.FromContext(c)
	defer prometheus.TrackDBOperation("query")(time.Now())

	page := service.NewPage(queryInt(c, "page", 1), queryInt(c, "page_size", service.DefaultPageSize), 1)
	db := h.db.WithContext(c.Request().Context())

	query := db.Model(&model.Brand{})
	if status := strings.ToUpper(c.QueryParam("status")); status != "" {
		query = query.Where("status = ?", status)
	}
	if name := strings.TrimSpace(c.QueryParam("name")); name != "" {
		query = query.Where("LOWER(name) LIKE LOWER(?)", "%"+name+"%")
	}

	sortField := c.QueryParam("sort_field")
	if !brandSortFields[sortField] {
		sortField = "updated_at"
	}
	order := sortField + " " + service.SortOrder(c.QueryParam("sort_order"))

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		log.Error("Failed to count brands", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	brands := []model.Brand{}
	if err := query.Session(&gorm.Session{}).Order(order).Order("id DESC").
		Limit(page.Size).Offset(page.Offset()).Find(&brands).Error; err != nil {
		log.Error("Failed to list brands", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	if err := fillBrandLogos(db, brands); err != nil {
		log.Error("Failed to load brand logos", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	return response.OK(c, "ok", listResult{Items: brands, Meta: page.Meta(total)})
}

// GetBrand returns one brand
func (h *Handler) GetBrand(c echo.Context) error {
	log := logger.FromContext(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	db := h.db.WithContext(c.Request().Context())
	var brand model.Brand
	if err := db.First(&brand, id).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusNotFound, "brand not found")
		}
		log.Error("Failed to load brand", zap.Uint("brand_id", id), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	brands := []model.Brand{brand}
	if err := fillBrandLogos(db, brands); err != nil {
		log.Error("Failed to load brand logo", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	return response.OK(c, "ok", brands[0])
}

// CreateBrand adds a brand with a unique name
func (h *Handler) CreateBrand(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req BrandRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return response.Fail(c, http.StatusBadRequest, "name is required")
	}
	if req.Status == "" {
		req.Status = model.BrandStatusActive
	}

	db := h.db.WithContext(c.Request().Context())
	if taken, err := brandNameTaken(db, name, 0); err != nil {
		log.Error("Failed to check brand name", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	} else if taken {
		return response.Fail(c, http.StatusConflict, "brand name already exists")
	}

	brand := model.Brand{Name: name, Status: req.Status, CreatedBy: &caller.UserID, UpdatedBy: &caller.UserID}
	if err := db.Create(&brand).Error; err != nil {
		log.Error("Failed to create brand", zap.String("name", name), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordBrandOperation("create")
	log.Info("Brand created", zap.Uint("brand_id", brand.ID), zap.String("name", brand.Name))
	return response.Created(c, "brand created", brand)
}

// UpdateBrand renames a brand or changes its status
func (h *Handler) UpdateBrand(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req UpdateBrandRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	db := h.db.WithContext(c.Request().Context())
	var brand model.Brand
	if err := db.First(&brand, id).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusNotFound, "brand not found")
		}
		log.Error("Failed to load brand", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	updates := map[string]interface{}{"updated_by": caller.UserID}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return response.Fail(c, http.StatusBadRequest, "name is required")
		}
		if taken, err := brandNameTaken(db, name, id); err != nil {
			log.Error("Failed to check brand name", zap.Error(err))
			return response.Fail(c, http.StatusInternalServerError, "internal server error")
		} else if taken {
			return response.Fail(c, http.StatusConflict, "brand name already exists")
		}
		updates["name"] = name
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}

	if err := db.Model(&brand).Updates(updates).Error; err != nil {
		log.Error("Failed to update brand", zap.Uint("brand_id", id), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if err := db.First(&brand, id).Error; err != nil {
		log.Error("Failed to reload brand", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordBrandOperation("update")
	log.Info("Brand updated", zap.Uint("brand_id", id))
	return response.OK(c, "brand updated", brand)
}

// UpdateBrandStatus activates or deactivates a brand
func (h *Handler) UpdateBrandStatus(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req BrandStatusRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	result := h.db.WithContext(c.Request().Context()).Model(&model.Brand{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": req.Status, "updated_by": caller.UserID})
	if result.Error != nil {
		log.Error("Failed to update brand status", zap.Uint("brand_id", id), zap.Error(result.Error))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if result.RowsAffected == 0 {
		return response.Fail(c, http.StatusNotFound, "brand not found")
	}

	prometheus.RecordBrandOperation("status")
	return response.OK(c, "status updated", echo.Map{"id": id, "status": req.Status})
}

// DeleteBrand removes a brand nothing refers to, along with its logo files
func (h *Handler) DeleteBrand(c echo.Context) error {
	log := logger.FromContext(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var files []string
	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		var brand model.Brand
		if err := tx.First(&brand, id).Error; err != nil {
			if isNotFound(err) {
				return service.NotFound("brand not found")
			}
			return err
		}

		// recycled products still point at the brand and may be restored
		var refs int64
		if err := tx.Unscoped().Model(&model.Product{}).Where("brand_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return service.Conflict("brand is still used by products")
		}

		if err := tx.Model(&model.Attachment{}).
			Where("entity_type = ? AND entity_id = ?", model.EntityBrand, id).
			Pluck("file_path", &files).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_type = ? AND entity_id = ?", model.EntityBrand, id).
			Delete(&model.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&brand).Error
	})
	if err != nil {
		return fail(c, log, err, "Delete brand")
	}

	h.attachments.RemoveFiles(c.Request().Context(), files)

	prometheus.RecordBrandOperation("delete")
	log.Info("Brand deleted", zap.Uint("brand_id", id))
	return response.OK(c, "brand deleted", echo.Map{"id": id})
}

func brandNameTaken(db *gorm.DB, name string, exceptID uint) (bool, error) {
	var count int64
	query := db.Model(&model.Brand{}).Where("LOWER(name) = LOWER(?)", name)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// fillBrandLogos sets LogoURL from the newest image attached to each brand
func fillBrandLogos(db *gorm.DB, brands []model.Brand) error {
	if len(brands) == 0 {
		return nil
	}
	ids := make([]uint, len(brands))
	for i, b := range brands {
		ids[i] = b.ID
	}

	var logos []model.Attachment
	if err := db.Where("entity_type = ? AND file_type = ? AND entity_id IN ?",
		model.EntityBrand, model.FileTypeImage, ids).
		Order("id DESC").Find(&logos).Error; err != nil {
		return err
	}

	latest := make(map[uint]string, len(logos))
	for _, a := range logos {
		if _, ok := latest[a.EntityID]; !ok {
			latest[a.EntityID] = a.FilePath
		}
	}
	for i := range brands {
		brands[i].LogoURL = latest[brands[i].ID]
	}
	return nil
}
