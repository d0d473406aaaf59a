package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"contacts-api/internal/models"
	"contacts-api/internal/repository"
	apimodels "contacts-api/pkg/models"

	"github.com/gin-gonic/gin"
)

const contactsPerPage = 10

// Events receives contact changes made through the API.
type Events interface {
	NotifyContactUpdated(contact models.Contact)
	NotifyContactDeleted(id uint)
	NotifyFileUploaded(path string)
}

type noopEvents struct{}

func (noopEvents) NotifyContactUpdated(models.Contact) {}
func (noopEvents) NotifyContactDeleted(uint)           {}
func (noopEvents) NotifyFileUploaded(string)           {}

type ContactHandler struct {
	repo   repository.ContactRepository
	events Events
}

func NewContactHandler(repo repository.ContactRepository, events Events) *ContactHandler {
	if events == nil {
		events = noopEvents{}
	}
	return &ContactHandler{repo: repo, events: events}
}

// GetContacts lists contacts, optionally filtered by name and email substrings.
func (h *ContactHandler) GetContacts(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	filter := repository.ContactFilter{
		Name:  c.Query("name"),
		Email: c.Query("email"),
	}

	result, err := h.repo.List(c.Request.Context(), filter, page, contactsPerPage)
	if err != nil {
		serverError(c, err)
		return
	}

	c.JSON(http.StatusOK, paginate(result, requestURL(c)))
}

func (h *ContactHandler) GetContact(c *gin.Context) {
	id, ok := contactID(c)
	if !ok {
		return
	}

	contact, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		h.lookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, contact)
}

type UpdateContactRequest struct {
	Name  *string `json:"name" form:"name"`
	Email *string `json:"email" form:"email"`
	Phone *string `json:"phone" form:"phone"`
}

// UpdateContact applies only the fields present in the request body.
func (h *ContactHandler) UpdateContact(c *gin.Context) {
	id, ok := contactID(c)
	if !ok {
		return
	}

	req, err := bindUpdate(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.repo.Update(c.Request.Context(), id, repository.ContactPatch{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		h.lookupError(c, err)
		return
	}

	h.events.NotifyContactUpdated(contact)
	c.JSON(http.StatusOK, apimodels.MessageResponse{Message: "Contact updated successfully"})
}

func (h *ContactHandler) DeleteContact(c *gin.Context) {
	id, ok := contactID(c)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.lookupError(c, err)
		return
	}

	h.events.NotifyContactDeleted(id)
	c.JSON(http.StatusOK, apimodels.MessageResponse{Message: "Contact deleted successfully"})
}

func (h *ContactHandler) lookupError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		notFound(c)
		return
	}
	serverError(c, err)
}

// bindUpdate reads the partial update from a JSON or form body. An empty body
// is an empty update.
func bindUpdate(c *gin.Context) (UpdateContactRequest, error) {
	var req UpdateContactRequest

	switch c.ContentType() {
	case gin.MIMEPOSTForm, gin.MIMEMultipartPOSTForm:
		for field, dst := range map[string]**string{"name": &req.Name, "email": &req.Email, "phone": &req.Phone} {
			if v, ok := c.GetPostForm(field); ok {
				value := v
				*dst = &value
			}
		}
		return req, nil
	default:
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			return UpdateContactRequest{}, err
		}
		return req, nil
	}
}

// contactID parses the :id parameter. Anything that is not a positive integer
// cannot name a contact, so it is answered with 404.
func contactID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		notFound(c)
		return 0, false
	}
	return uint(id), true
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, apimodels.MessageResponse{Message: "Contact not found"})
}

func serverError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, apimodels.MessageResponse{Message: "Server Error"})
}

func requestURL(c *gin.Context) *url.URL {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return &url.URL{
		Scheme:   scheme,
		Host:     c.Request.Host,
		Path:     c.Request.URL.Path,
		RawQuery: c.Request.URL.RawQuery,
	}
}
