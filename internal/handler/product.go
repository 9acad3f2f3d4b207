package handler

import (
	"net/http"
	"strings"
	"time"

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

type PriceTierInput struct {
	Quantity string          `json:"quantity" validate:"required,max=50"`
	Price    decimal.Decimal `json:"price"`
}

type ProductRequest struct {
	Name           string           `json:"name" validate:"required,max=255"`
	BrandID        *uint            `json:"brand_id"`
	ProductCode    string           `json:"product_code" validate:"max=100"`
	Specification  string           `json:"specification"`
	NetContent     string           `json:"net_content" validate:"max=100"`
	ProductSize    string           `json:"product_size" validate:"max=100"`
	ShippingMethod string           `json:"shipping_method" validate:"max=100"`
	ShippingSpec   string           `json:"shipping_spec" validate:"max=100"`
	ShippingSize   string           `json:"shipping_size" validate:"max=100"`
	ProductURL     string           `json:"product_url" validate:"omitempty,weburl,max=255"`
	PriceTiers     []PriceTierInput `json:"price_tiers" validate:"dive"`
	AttachmentIDs  []uint           `json:"attachment_ids"`
}

type UpdateProductRequest struct {
	Name                 *string          `json:"name" validate:"omitempty,min=1,max=255"`
	BrandID              *uint            `json:"brand_id"`
	ProductCode          *string          `json:"product_code" validate:"omitempty,max=100"`
	Specification        *string          `json:"specification"`
	NetContent           *string          `json:"net_content" validate:"omitempty,max=100"`
	ProductSize          *string          `json:"product_size" validate:"omitempty,max=100"`
	ShippingMethod       *string          `json:"shipping_method" validate:"omitempty,max=100"`
	ShippingSpec         *string          `json:"shipping_spec" validate:"omitempty,max=100"`
	ShippingSize         *string          `json:"shipping_size" validate:"omitempty,max=100"`
	ProductURL           *string          `json:"product_url" validate:"omitempty,weburl,max=255"`
	PriceTiers           []PriceTierInput `json:"price_tiers" validate:"omitempty,dive"`
	AttachmentIDs        []uint           `json:"attachment_ids"`
	DeletedAttachmentIDs []uint           `json:"deleted_attachment_ids"`
}

type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

var productSortFields = map[string]bool{
	"name":         true,
	"product_code": true,
	"created_at":   true,
	"updated_at":   true,
	"brand_id":     true,
}

// ListProducts lists the products visible to the caller
func (h *Handler) ListProducts(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)
	defer prometheus.TrackDBOperation("query")(time.Now())

	page := service.NewPage(queryInt(c, "page", 1), queryInt(c, "page_size", service.DefaultPageSize), service.DefaultPageSize)
	filter := visibility.Filter{
		OwnerType: visibility.ParseOwnerType(c.QueryParam("owner_type")),
		OwnerID:   queryUint(c, "owner_id"),
	}

	query := h.db.WithContext(c.Request().Context()).Model(&model.Product{}).
		Scopes(visibility.Scope(caller, filter, "products"))
	if kw := strings.TrimSpace(c.QueryParam("keyword")); kw != "" {
		query = query.Where("(LOWER(products.name) LIKE LOWER(?) OR LOWER(products.product_code) LIKE LOWER(?))",
			"%"+kw+"%", "%"+kw+"%")
	}
	if name := strings.TrimSpace(c.QueryParam("name")); name != "" {
		query = query.Where("LOWER(products.name) LIKE LOWER(?)", "%"+name+"%")
	}
	if code := strings.TrimSpace(c.QueryParam("product_code")); code != "" {
		query = query.Where("LOWER(products.product_code) LIKE LOWER(?)", "%"+code+"%")
	}
	if brandID := queryUint(c, "brand_id"); brandID != 0 {
		query = query.Where("products.brand_id = ?", brandID)
	}

	sortField := c.QueryParam("sort_field")
	if !productSortFields[sortField] {
		sortField = "updated_at"
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		log.Error("Failed to count products", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	products := []model.Product{}
	err := withProductDetails(query.Session(&gorm.Session{})).
		Order("products." + sortField + " " + service.SortOrder(c.QueryParam("sort_order"))).
		Order("products.id DESC").
		Limit(page.Size).Offset(page.Offset()).
		Find(&products).Error
	if err != nil {
		log.Error("Failed to list products", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	return response.OK(c, "ok", listResult{Items: products, Meta: page.Meta(total)})
}

// GetProduct returns one product the caller may see
func (h *Handler) GetProduct(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var product model.Product
	if err := withProductDetails(h.db.WithContext(c.Request().Context())).First(&product, id).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusNotFound, "product not found")
		}
		log.Error("Failed to load product", zap.Uint("product_id", id), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if !visibility.CanView(caller, product.Owner()) {
		return response.Fail(c, http.StatusForbidden, "no permission to view this product")
	}

	return response.OK(c, "ok", product)
}

// CreateProduct adds a product to the caller's home catalog
func (h *Handler) CreateProduct(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req ProductRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}
	if err := checkTierPrices(req.PriceTiers); err != nil {
		return fail(c, log, err, "Create product")
	}

	product := model.Product{
		Name:           strings.TrimSpace(req.Name),
		BrandID:        brandRef(req.BrandID),
		ProductCode:    strings.TrimSpace(req.ProductCode),
		Specification:  req.Specification,
		NetContent:     req.NetContent,
		ProductSize:    req.ProductSize,
		ShippingMethod: req.ShippingMethod,
		ShippingSpec:   req.ShippingSpec,
		ShippingSize:   req.ShippingSize,
		ProductURL:     req.ProductURL,
		CreatedBy:      &caller.UserID,
		UpdatedBy:      &caller.UserID,
	}
	product.SetOwner(caller.HomeOwner())

	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		if err := checkBrand(tx, product.BrandID); err != nil {
			return err
		}
		if err := checkProductCode(tx, product.Owner(), product.ProductCode, 0); err != nil {
			return err
		}
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		if err := createTiers(tx, caller, product.ID, req.PriceTiers); err != nil {
			return err
		}
		return service.BindToProduct(tx, caller, product.ID, uniqueIDs(req.AttachmentIDs))
	})
	if err != nil {
		return fail(c, log, err, "Create product")
	}

	if err := withProductDetails(h.db.WithContext(c.Request().Context())).First(&product, product.ID).Error; err != nil {
		log.Error("Failed to reload product", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordProductOperation("create")
	log.Info("Product created",
		zap.Uint("product_id", product.ID),
		zap.String("owner_type", product.OwnerType),
		zap.String("product_code", product.ProductCode))
	return response.Created(c, "product created", product)
}

// UpdateProduct applies a partial update. Attachments listed in
// deleted_attachment_ids are removed after the update commits.
func (h *Handler) UpdateProduct(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req UpdateProductRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}
	if err := checkTierPrices(req.PriceTiers); err != nil {
		return fail(c, log, err, "Update product")
	}

	var removed []string
	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, id).Error; err != nil {
			if isNotFound(err) {
				return service.NotFound("product not found")
			}
			return err
		}
		if !visibility.CanMutate(caller, product.Owner()) {
			return service.Forbidden("no permission to modify this product")
		}

		updates := map[string]interface{}{"updated_by": caller.UserID}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return service.Invalid("name is required")
			}
			updates["name"] = name
		}
		if req.BrandID != nil {
			if err := checkBrand(tx, req.BrandID); err != nil {
				return err
			}
			if ref := brandRef(req.BrandID); ref != nil {
				updates["brand_id"] = *ref
			} else {
				updates["brand_id"] = nil
			}
		}
		if req.ProductCode != nil {
			code := strings.TrimSpace(*req.ProductCode)
			if err := checkProductCode(tx, product.Owner(), code, product.ID); err != nil {
				return err
			}
			updates["product_code"] = code
		}
		setIfPresent(updates, "specification", req.Specification)
		setIfPresent(updates, "net_content", req.NetContent)
		setIfPresent(updates, "product_size", req.ProductSize)
		setIfPresent(updates, "shipping_method", req.ShippingMethod)
		setIfPresent(updates, "shipping_spec", req.ShippingSpec)
		setIfPresent(updates, "shipping_size", req.ShippingSize)
		setIfPresent(updates, "product_url", req.ProductURL)

		if err := tx.Model(&model.Product{}).Where("id = ?", product.ID).Updates(updates).Error; err != nil {
			return err
		}

		if req.PriceTiers != nil {
			if err := tx.Where("product_id = ?", product.ID).Delete(&model.PriceTier{}).Error; err != nil {
				return err
			}
			if err := createTiers(tx, caller, product.ID, req.PriceTiers); err != nil {
				return err
			}
		}

		var err error
		if removed, err = service.DetachFromProduct(tx, product.ID, uniqueIDs(req.DeletedAttachmentIDs)); err != nil {
			return err
		}
		return service.BindToProduct(tx, caller, product.ID, uniqueIDs(req.AttachmentIDs))
	})
	if err != nil {
		return fail(c, log, err, "Update product")
	}

	h.attachments.RemoveFiles(c.Request().Context(), removed)

	var product model.Product
	if err := withProductDetails(h.db.WithContext(c.Request().Context())).First(&product, id).Error; err != nil {
		log.Error("Failed to reload product", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordProductOperation("update")
	log.Info("Product updated", zap.Uint("product_id", id), zap.Int("removed_files", len(removed)))
	return response.OK(c, "product updated", product)
}

// RecycleProduct moves a product into the recycle bin
func (h *Handler) RecycleProduct(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req ConfirmRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	bin, err := h.recycle.Recycle(c.Request().Context(), caller, id, req.Confirm)
	if err != nil {
		return fail(c, log, err, "Recycle product")
	}

	prometheus.RecordRecycleOperation("recycle")
	log.Info("Product recycled", zap.Uint("product_id", id), zap.Uint("recycle_id", bin.ID))
	return response.OK(c, "product moved to recycle bin", bin)
}

// PurgeProduct permanently deletes a product with its tiers and files
func (h *Handler) PurgeProduct(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	if err := h.recycle.PurgeProduct(c.Request().Context(), caller, id); err != nil {
		return fail(c, log, err, "Purge product")
	}

	prometheus.RecordProductOperation("purge")
	log.Info("Product purged", zap.Uint("product_id", id))
	return response.OK(c, "product permanently deleted", echo.Map{"id": id})
}

// CopyProduct copies a product across the company/seller boundary. Admins
// pull seller products into the company catalog and sellers copy company
// products into their own.
func (h *Handler) CopyProduct(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var copied []string
	var product model.Product
	err := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		var source model.Product
		if err := tx.Preload("PriceTiers").Preload("Attachments").First(&source, id).Error; err != nil {
			if isNotFound(err) {
				return service.NotFound("product not found")
			}
			return err
		}

		target := caller.HomeOwner()
		if !visibility.CanView(caller, source.Owner()) {
			return service.Forbidden("no permission to copy this product")
		}
		if source.Owner() == target {
			return service.Invalid("product is already in your catalog")
		}
		if err := checkProductCode(tx, target, source.ProductCode, 0); err != nil {
			return err
		}

		product = model.Product{
			Name:           source.Name,
			BrandID:        source.BrandID,
			ProductCode:    source.ProductCode,
			Specification:  source.Specification,
			NetContent:     source.NetContent,
			ProductSize:    source.ProductSize,
			ShippingMethod: source.ShippingMethod,
			ShippingSpec:   source.ShippingSpec,
			ShippingSize:   source.ShippingSize,
			ProductURL:     source.ProductURL,
			CreatedBy:      &caller.UserID,
			UpdatedBy:      &caller.UserID,
		}
		product.SetOwner(target)
		if err := tx.Create(&product).Error; err != nil {
			return err
		}

		for _, t := range source.PriceTiers {
			tier := model.PriceTier{ProductID: product.ID, Quantity: t.Quantity, Price: t.Price, CreatedBy: &caller.UserID}
			if err := tx.Create(&tier).Error; err != nil {
				return err
			}
		}

		for _, a := range source.Attachments {
			path, err := h.files.Copy(a.FilePath)
			if err != nil {
				return err
			}
			copied = append(copied, path)
			attachment := model.Attachment{
				EntityType: model.EntityProduct,
				EntityID:   product.ID,
				FileType:   a.FileType,
				FilePath:   path,
				FileName:   a.FileName,
				FileSize:   a.FileSize,
				CreatedBy:  &caller.UserID,
			}
			if err := tx.Create(&attachment).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.attachments.RemoveFiles(c.Request().Context(), copied)
		return fail(c, log, err, "Copy product")
	}

	if err := withProductDetails(h.db.WithContext(c.Request().Context())).First(&product, product.ID).Error; err != nil {
		log.Error("Failed to reload product", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordProductOperation("copy")
	log.Info("Product copied",
		zap.Uint("source_id", id),
		zap.Uint("product_id", product.ID),
		zap.Int("files", len(copied)))
	return response.Created(c, "product copied", product)
}

func withProductDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Brand").
		Preload("PriceTiers", func(db *gorm.DB) *gorm.DB { return db.Order("quantity ASC") }).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

// brandRef maps a zero brand id to no brand
func brandRef(id *uint) *uint {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}

func checkBrand(tx *gorm.DB, brandID *uint) error {
	if brandID == nil || *brandID == 0 {
		return nil
	}
	var brand model.Brand
	if err := tx.First(&brand, *brandID).Error; err != nil {
		if isNotFound(err) {
			return service.NotFound("brand not found")
		}
		return err
	}
	return nil
}

// checkProductCode rejects a code already used by another active product of owner
func checkProductCode(tx *gorm.DB, owner visibility.Owner, code string, exceptID uint) error {
	if code == "" {
		return nil
	}
	var count int64
	query := tx.Model(&model.Product{}).Scopes(visibility.OwnedBy(owner, "")).Where("product_code = ?", code)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return service.Conflict("product code already exists")
	}
	return nil
}

func checkTierPrices(tiers []PriceTierInput) error {
	for _, t := range tiers {
		if t.Price.IsNegative() {
			return service.Invalid("price must not be negative")
		}
	}
	return nil
}

func createTiers(tx *gorm.DB, caller visibility.Caller, productID uint, tiers []PriceTierInput) error {
	for _, t := range tiers {
		tier := model.PriceTier{
			ProductID: productID,
			Quantity:  strings.TrimSpace(t.Quantity),
			Price:     t.Price.Round(2),
			CreatedBy: &caller.UserID,
		}
		if err := tx.Create(&tier).Error; err != nil {
			return err
		}
	}
	return nil
}

func setIfPresent(updates map[string]interface{}, column string, v *string) {
	if v != nil {
		updates[column] = *v
	}
}
