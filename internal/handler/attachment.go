package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
)

type RebindAttachmentRequest struct {
	EntityType string `json:"entity_type" validate:"required"`
	EntityID   uint   `json:"entity_id"`
}

// UploadImage accepts a multipart image for a product, brand or user slot
func (h *Handler) UploadImage(c echo.Context) error {
	return h.upload(c, "image", func(in service.UploadInput) (*model.Attachment, error) {
		return h.attachments.UploadImage(c.Request().Context(), middleware.GetCaller(c), in)
	})
}

// UploadMaterial accepts a multipart archive for a product
func (h *Handler) UploadMaterial(c echo.Context) error {
	return h.upload(c, "material", func(in service.UploadInput) (*model.Attachment, error) {
		return h.attachments.UploadMaterial(c.Request().Context(), middleware.GetCaller(c), in)
	})
}

func (h *Handler) upload(c echo.Context, kind string, store func(service.UploadInput) (*model.Attachment, error)) error {
	log := logger.FromContext(c)

	fh, err := c.FormFile("file")
	if err != nil {
		log.Warn("Upload without file", zap.Error(err))
		return response.Fail(c, http.StatusBadRequest, "file is required")
	}

	var entityID uint
	if v := c.FormValue("entity_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return response.Fail(c, http.StatusBadRequest, "invalid entity_id")
		}
		entityID = uint(id)
	}
	replace, _ := strconv.ParseBool(c.FormValue("replace_existing"))

	src, err := fh.Open()
	if err != nil {
		log.Error("Failed to open uploaded file", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	defer src.Close()

	attachment, err := store(service.UploadInput{
		EntityType:      c.FormValue("entity_type"),
		EntityID:        entityID,
		Slot:            c.FormValue("slot"),
		ReplaceExisting: replace,
		FileName:        fh.Filename,
		Size:            fh.Size,
		Content:         src,
	})
	if err != nil {
		return fail(c, log, err, "Upload "+kind)
	}

	prometheus.RecordAttachmentOperation("upload_" + kind)
	log.Info("File uploaded",
		zap.Uint("attachment_id", attachment.ID),
		zap.String("entity_type", attachment.EntityType),
		zap.Uint("entity_id", attachment.EntityID),
		zap.Int64("size", attachment.FileSize))
	return response.Created(c, "file uploaded", attachment)
}

// RebindAttachment moves an attachment to another entity
func (h *Handler) RebindAttachment(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	var req RebindAttachmentRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	attachment, err := h.attachments.Rebind(c.Request().Context(), caller, id, req.EntityType, req.EntityID)
	if err != nil {
		return fail(c, log, err, "Rebind attachment")
	}

	prometheus.RecordAttachmentOperation("rebind")
	return response.OK(c, "attachment updated", attachment)
}

// DeleteAttachment removes an attachment and its file
func (h *Handler) DeleteAttachment(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	id, ok := paramID(c, "id")
	if !ok {
		return invalidID(c)
	}

	if err := h.attachments.Delete(c.Request().Context(), caller, id); err != nil {
		return fail(c, log, err, "Delete attachment")
	}

	prometheus.RecordAttachmentOperation("delete")
	log.Info("Attachment deleted", zap.Uint("attachment_id", id))
	return response.OK(c, "attachment deleted", echo.Map{"id": id})
}
