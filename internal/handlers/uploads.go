package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/storage"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
	"gorm.io/gorm"
)

const (
	maxUploadSize   = 8 << 20
	presignedURLTTL = 15 * time.Minute
)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// UploadsHandler stores images embedded in report markdown. Store is nil when object
// storage is disabled.
type UploadsHandler struct {
	DB    *gorm.DB
	Store storage.ObjectStore
}

func NewUploadsHandler(db *gorm.DB, store storage.ObjectStore) *UploadsHandler {
	return &UploadsHandler{DB: db, Store: store}
}

func (h *UploadsHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if h.Store == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "uploads are disabled")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxUploadSize {
		return utils.Error(c, fiber.StatusRequestEntityTooLarge, "image exceeds the 8 MB limit")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	// The declared content type is ignored; the first bytes decide.
	head := make([]byte, 512)
	n, err := io.ReadFull(stream, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading uploaded file")
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !allowedImageTypes[contentType] {
		logger.WarnWithUser(currentUser.ID.String(), "upload_rejected", map[string]interface{}{
			"file_name":    fileHeader.Filename,
			"content_type": contentType,
		})
		return utils.Error(c, fiber.StatusUnsupportedMediaType, "only png, jpeg, gif and webp images are allowed")
	}

	upload := models.Upload{
		OwnerID:  currentUser.ID,
		FileName: storage.SanitizeFileName(fileHeader.Filename),
		MimeType: contentType,
		Size:     fileHeader.Size,
	}
	upload.ID = uuid.New()
	upload.StoragePath = storage.ObjectName(currentUser.ID, upload.ID, fileHeader.Filename)

	body := io.MultiReader(bytes.NewReader(head), stream)
	if err := h.Store.Upload(c.UserContext(), upload.StoragePath, body, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading file")
	}

	if err := h.DB.WithContext(c.UserContext()).Create(&upload).Error; err != nil {
		_ = h.Store.Delete(c.UserContext(), upload.StoragePath)
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating upload record")
	}

	logger.InfoWithUser(currentUser.ID.String(), "image_uploaded", map[string]interface{}{
		"upload_id": upload.ID.String(),
		"file_name": upload.FileName,
		"file_size": upload.Size,
		"mime_type": contentType,
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"upload": upload,
		"url":    "/api/uploads/" + upload.ID.String(),
	})
}

// Get redirects to a short-lived presigned URL for the stored image.
func (h *UploadsHandler) Get(c *fiber.Ctx) error {
	if h.Store == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "uploads are disabled")
	}

	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "upload not found")
	}

	var upload models.Upload
	if err := h.DB.WithContext(c.UserContext()).First(&upload, "id = ?", uploadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "upload not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading upload")
	}

	url, err := h.Store.PresignedGetURL(c.UserContext(), upload.StoragePath, presignedURLTTL)
	if err != nil {
		logger.Error("presign_failed", err, map[string]interface{}{
			"upload_id": upload.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download url")
	}
	return c.Redirect(url, fiber.StatusFound)
}
