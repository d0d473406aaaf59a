package api

import (
	"errors"
	"net/http"

	"contacts-api/internal/metrics"
	"contacts-api/internal/storage"
	apimodels "contacts-api/pkg/models"

	"github.com/gin-gonic/gin"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

type UploadHandler struct {
	storage storage.Storage
	maxSize int64
	events  Events
}

func NewUploadHandler(store storage.Storage, maxSize int64, events Events) *UploadHandler {
	if events == nil {
		events = noopEvents{}
	}
	return &UploadHandler{storage: store, maxSize: maxSize, events: events}
}

// Upload stores the contacts file under the contacts namespace. The file is
// not parsed here; ingestion picks it up from storage.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.maxSize > 0 {
		// Leave room for the multipart envelope around the file itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartMemory)
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(c, ValidationErrors{uploadField: {"The contacts field must not be greater than the allowed upload size."}})
			return
		}
		// Unreadable bodies are treated as a missing field, like an empty form.
		_ = c.Error(err)
	}

	header, verrs := validateUpload(c.Request, h.maxSize)
	if verrs != nil {
		h.reject(c, verrs)
		return
	}

	src, err := header.Open()
	if err != nil {
		metrics.RecordUpload("failed", 0)
		serverError(c, err)
		return
	}
	defer src.Close()

	info, err := h.storage.Save(c.Request.Context(), src, storage.SaveOptions{
		Directory:    storage.ContactsDirectory,
		Extension:    ".json",
		ContentType:  "application/json",
		OriginalName: header.Filename,
	})
	if err != nil {
		metrics.RecordUpload("failed", 0)
		serverError(c, err)
		return
	}

	metrics.RecordUpload("stored", info.Size)
	h.events.NotifyFileUploaded(info.Path)
	c.JSON(http.StatusOK, apimodels.UploadResponse{
		Message: "File uploaded successfully",
		Path:    info.Path,
	})
}

func (h *UploadHandler) reject(c *gin.Context, verrs ValidationErrors) {
	metrics.RecordUpload("invalid", 0)
	c.JSON(http.StatusUnprocessableEntity, apimodels.ValidationErrorResponse{
		Message: verrs.Message(),
		Errors:  verrs,
	})
}
