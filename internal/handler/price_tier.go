package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreatePriceTierRequest struct {
	ProductID uint            `json:"product_id" validate:"required"`
	Quantity  string          `json:"quantity" validate:"required,max=50"`
	Price     decimal.Decimal `json:"price"`
}

type UpdatePriceTierRequest struct {
	Quantity *string          `json:"quantity" validate:"omitempty,min=1,max=50"`
	Price    *decimal.Decimal `json:"price"`
}

// CreatePriceTier adds a tier to a product the caller may modify
func (h *Handler) CreatePriceTier(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req CreatePriceTierRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}
	if req.Price.IsNegative() {
		return response.Fail(c, http.StatusBadRequest, "price must not be negative")
	}

	tier := model.PriceTier{
		ProductID: req.ProductID,
		Quantity:  strings.TrimSpace(req.Quantity),
		Price:     req.Price.Round(2),
		CreatedBy: &caller.UserID,
	}
	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		if err := lockProductForTier(tx, caller, req.ProductID); err != nil {
			return err
		}
		return tx.Create(&tier).Error
	})
	if err != nil {
		return fail(c, log, err, "Create price tier")
	}

	prometheus.RecordProductOperation("price_tier_create")
	log.Info("Price tier created", zap.Uint("tier_id", tier.ID), zap.Uint("product_id", tier.ProductID))
	return response.Created(c, "price tier created", tier)
}

// UpdatePriceTier changes the quantity or price of a tier
func (h *Handler) UpdatePriceTier(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req UpdatePriceTierRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}
	if req.Price != nil && req.Price.IsNegative() {
		return response.Fail(c, http.StatusBadRequest, "price must not be negative")
	}

	var tier model.PriceTier
	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tier, id).Error; err != nil {
			if isNotFound(err) {
				return service.NotFound("price tier not found")
			}
			return err
		}
		if err := lockProductForTier(tx, caller, tier.ProductID); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if req.Quantity != nil {
			updates["quantity"] = strings.TrimSpace(*req.Quantity)
		}
		if req.Price != nil {
			updates["price"] = req.Price.Round(2)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&model.PriceTier{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&tier, id).Error
	})
	if err != nil {
		return fail(c, log, err, "Update price tier")
	}

	prometheus.RecordProductOperation("price_tier_update")
	log.Info("Price tier updated", zap.Uint("tier_id", id))
	return response.OK(c, "price tier updated", tier)
}

// DeletePriceTier removes a tier
func (h *Handler) DeletePriceTier(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		var tier model.PriceTier
		if err := tx.First(&tier, id).Error; err != nil {
			if isNotFound(err) {
				return service.NotFound("price tier not found")
			}
			return err
		}
		if err := lockProductForTier(tx, caller, tier.ProductID); err != nil {
			return err
		}
		return tx.Delete(&model.PriceTier{}, id).Error
	})
	if err != nil {
		return fail(c, log, err, "Delete price tier")
	}

	prometheus.RecordProductOperation("price_tier_delete")
	log.Info("Price tier deleted", zap.Uint("tier_id", id))
	return response.OK(c, "price tier deleted", echo.Map{"id": id})
}

func lockProductForTier(tx *gorm.DB, caller visibility.Caller, productID uint) error {
	var product model.Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productID).Error; err != nil {
		if isNotFound(err) {
			return service.NotFound("product not found")
		}
		return err
	}
	if !visibility.CanMutate(caller, product.Owner()) {
		return service.Forbidden("no permission to modify this product")
	}
	return nil
}
