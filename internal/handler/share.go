package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
)

type CreateShareRequest struct {
	ShareType string `json:"share_type"`
}

type QRCodeRequest struct {
	Token string `json:"token" validate:"required"`
	Size  int    `json:"size"`
}

// CreateShare issues a share link for the caller's catalog
func (h *Handler) CreateShare(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req CreateShareRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	share, err := h.shares.Create(c.Request().Context(), caller.UserID, req.ShareType)
	if err != nil {
		return fail(c, log, err, "Create share")
	}

	prometheus.RecordShareOperation("create")
	log.Info("Share created", zap.Uint("share_id", share.ID), zap.String("pallet_type", share.PalletType))
	return response.Created(c, "share created", service.ShareView{
		PalletShare: *share,
		ShareURL:    service.ShareURL(h.shareBaseURL(c), share.Token),
	})
}

// ShareQRCode renders the QR code of one of the caller's shares
func (h *Handler) ShareQRCode(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	var req QRCodeRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	result, err := h.shares.QRCode(c.Request().Context(), caller.UserID, req.Token, req.Size, h.shareBaseURL(c))
	if err != nil {
		return fail(c, log, err, "Render share QR code")
	}

	prometheus.RecordShareOperation("qrcode")
	return response.OK(c, "ok", result)
}

// ShareHistory lists the caller's shares
func (h *Handler) ShareHistory(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	views, meta, err := h.shares.History(c.Request().Context(), caller.UserID,
		queryInt(c, "page", 1), queryInt(c, "page_size", service.DefaultPageSize), h.shareBaseURL(c))
	if err != nil {
		return fail(c, log, err, "List shares")
	}

	return response.OK(c, "ok", listResult{Items: views, Meta: meta})
}

// ResolveShare serves the public catalog behind a share token
func (h *Handler) ResolveShare(c echo.Context) error {
	log := logger.FromContext(c)

	token := c.Param("token")
	if token == "" {
		return response.Fail(c, http.StatusBadRequest, "token is required")
	}

	catalog, err := h.shares.Resolve(c.Request().Context(), token, service.ShareQuery{
		Keyword:   c.QueryParam("keyword"),
		BrandID:   queryUint(c, "brand_id"),
		SortField: c.QueryParam("sort_field"),
		SortOrder: c.QueryParam("sort_order"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", service.DefaultPageSize),
	}, service.ClientInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return fail(c, log, err, "Resolve share")
	}

	prometheus.RecordShareView(catalog.PalletType)
	return response.OK(c, "ok", catalog)
}

// shareBaseURL is the configured public origin, or the request's own origin
func (h *Handler) shareBaseURL(c echo.Context) string {
	if h.cfg != nil && h.cfg.Upload.ShareBaseURL != "" {
		return h.cfg.Upload.ShareBaseURL
	}
	return c.Scheme() + "://" + c.Request().Host
}
