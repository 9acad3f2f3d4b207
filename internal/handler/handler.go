// Package handler holds the HTTP handlers of the pallet API.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/pkg/config"
	"github.com/suteetoe/pallet-service/pkg/jwtutil"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/pkg/revocation"
	"github.com/suteetoe/pallet-service/pkg/storage"
	"github.com/suteetoe/pallet-service/pkg/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the handlers are built from
type Deps struct {
	DB      *gorm.DB
	Config  *config.Config
	JWT     *jwtutil.JWTUtil
	Revoked revocation.Store
	Files   *storage.Local
	Redis   *redis.Client
	Logger  *zap.Logger
}

// Handler serves every API route
type Handler struct {
	db      *gorm.DB
	cfg     *config.Config
	jwt     *jwtutil.JWTUtil
	revoked revocation.Store
	files   *storage.Local

	recycle     *service.RecycleService
	shares      *service.ShareService
	attachments *service.AttachmentService

	now func() time.Time
}

// New wires the services on top of deps
func New(d Deps) *Handler {
	return &Handler{
		db:          d.DB,
		cfg:         d.Config,
		jwt:         d.JWT,
		revoked:     d.Revoked,
		files:       d.Files,
		recycle:     service.NewRecycleService(d.DB, d.Files),
		shares:      service.NewShareService(d.DB, d.Files),
		attachments: service.NewAttachmentService(d.DB, d.Files),
		now:         time.Now,
	}
}

// fail translates a service error into the response envelope. Unknown errors
// are logged and reported as a generic 500.
func fail(c echo.Context, log *zap.Logger, err error, action string) error {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, service.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, service.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, service.ErrTooLarge):
			status = http.StatusRequestEntityTooLarge
		}
		log.Warn(action+" rejected", zap.Int("status", status), zap.String("reason", svcErr.Message))
		return response.Fail(c, status, svcErr.Message)
	}

	log.Error(action+" failed", zap.Error(err))
	return response.Fail(c, http.StatusInternalServerError, "internal server error")
}

// bind decodes and validates the request body into req. On failure the 400
// response has already been written and ok is false.
func bind(c echo.Context, log *zap.Logger, req interface{}) (ok bool, err error) {
	if err := c.Bind(req); err != nil {
		log.Warn("Invalid request data", zap.Error(err))
		return false, response.Fail(c, http.StatusBadRequest, "invalid request data")
	}
	if err := c.Validate(req); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			log.Warn("Request validation failed", zap.Any("fields", verr.Fields))
			return false, response.Fail(c, http.StatusBadRequest, verr.Error())
		}
		return false, response.Fail(c, http.StatusBadRequest, err.Error())
	}
	return true, nil
}

// paramID parses a positive numeric path parameter
func paramID(c echo.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func invalidID(c echo.Context) error {
	return response.Fail(c, http.StatusBadRequest, "invalid id")
}

func queryInt(c echo.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.QueryParam(name)); err == nil {
		return v
	}
	return def
}

func queryUint(c echo.Context, name string) uint {
	if v, err := strconv.ParseUint(c.QueryParam(name), 10, 64); err == nil {
		return uint(v)
	}
	return 0
}

// listResult is the data of every paginated listing
type listResult struct {
	Items interface{}      `json:"items"`
	Meta  service.PageMeta `json:"meta"`
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
