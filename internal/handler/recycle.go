package handler

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
)

type BatchRecycleRequest struct {
	Confirm bool   `json:"confirm"`
	IDs     []uint `json:"ids"`
}

// ListRecycleBin lists the caller's recycle bin entries
func (h *Handler) ListRecycleBin(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	items, meta, err := h.recycle.List(c.Request().Context(), caller, service.RecycleQuery{
		Keyword:   c.QueryParam("keyword"),
		BrandID:   queryUint(c, "brand_id"),
		Status:    c.QueryParam("status"),
		SortField: c.QueryParam("sort_field"),
		SortOrder: c.QueryParam("sort_order"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", service.DefaultPageSize),
	})
	if err != nil {
		return fail(c, log, err, "List recycle bin")
	}

	return response.OK(c, "ok", listResult{Items: items, Meta: meta})
}

// RestoreRecycled restores one recycle bin entry
func (h *Handler) RestoreRecycled(c echo.Context) error {
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

	if err := h.recycle.Restore(c.Request().Context(), caller, id, req.Confirm); err != nil {
		return fail(c, log, err, "Restore product")
	}

	prometheus.RecordRecycleOperation("restore")
	log.Info("Product restored", zap.Uint("recycle_id", id))
	return response.OK(c, "product restored", echo.Map{"id": id})
}

// PurgeRecycled permanently deletes the product of one recycle bin entry
func (h *Handler) PurgeRecycled(c echo.Context) error {
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

	if err := h.recycle.Purge(c.Request().Context(), caller, id, req.Confirm); err != nil {
		return fail(c, log, err, "Purge recycled product")
	}

	prometheus.RecordRecycleOperation("purge")
	log.Info("Recycled product purged", zap.Uint("recycle_id", id))
	return response.OK(c, "product permanently deleted", echo.Map{"id": id})
}

// BatchRestoreRecycled restores several entries, reporting per-id failures
func (h *Handler) BatchRestoreRecycled(c echo.Context) error {
	return h.batchRecycle(c, "restore", h.recycle.BatchRestore)
}

// BatchPurgeRecycled purges several entries, reporting per-id failures
func (h *Handler) BatchPurgeRecycled(c echo.Context) error {
	return h.batchRecycle(c, "purge", h.recycle.BatchPurge)
}

func (h *Handler) batchRecycle(c echo.Context, op string,
	run func(context.Context, visibility.Caller, []uint, bool) (*service.BatchResult, error)) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req BatchRecycleRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	result, err := run(c.Request().Context(), caller, uniqueIDs(req.IDs), req.Confirm)
	if err != nil {
		return fail(c, log, err, "Batch "+op)
	}

	prometheus.RecordRecycleOperation("batch_" + op)
	log.Info("Recycle bin batch processed",
		zap.String("operation", op),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed))
	return response.OK(c, "batch "+op+" finished", result)
}
