// Package items exposes the clipboard item REST surface: listing, creation,
// deletion, reordering and payload reads.
package items

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/snipdrop/pkg/snipdrop/events"
	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"github.com/mikepea/snipdrop/pkg/snipdrop/ordering"
	"github.com/mikepea/snipdrop/pkg/snipdrop/storage"
	"github.com/sirupsen/logrus"
)

// Handler handles clipboard item requests
type Handler struct {
	store *storage.Store
	index *ordering.Index
	hub   *events.Hub
	log   *logrus.Logger
}

// NewHandler creates a new items handler
func NewHandler(store *storage.Store, index *ordering.Index, hub *events.Hub, log *logrus.Logger) *Handler {
	return &Handler{store: store, index: index, hub: hub, log: log}
}

// ItemResponse represents an item in API responses. Payload bytes are never
// echoed; clients fetch them through the files endpoint.
type ItemResponse struct {
	ID         string          `json:"id"`
	Kind       models.ItemKind `json:"type"`
	Content    *string         `json:"content,omitempty"`
	FileName   *string         `json:"fileName,omitempty"`
	FileSize   *int64          `json:"fileSize,omitempty"`
	MimeType   *string         `json:"mimeType,omitempty"`
	SortWeight int64           `json:"sortWeight"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func itemToResponse(item *models.Item) ItemResponse {
	return ItemResponse{
		ID:         item.ID,
		Kind:       item.Kind,
		Content:    item.Content,
		FileName:   item.FileName,
		FileSize:   item.FileSize,
		MimeType:   item.MimeType,
		SortWeight: item.SortWeight,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

// ListResponse is one page of items
type ListResponse struct {
	Items      []ItemResponse `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
	HasMore    bool           `json:"hasMore"`
}

// ReorderRequest carries the desired top-to-bottom item order
type ReorderRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
	case errors.Is(err, storage.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content or file is required"})
	case errors.Is(err, storage.ErrPayloadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
	case errors.Is(err, storage.ErrPayloadMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": "File content missing"})
	case errors.Is(err, ordering.ErrBadCursor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
	default:
		h.log.WithError(err).Error("item operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// List returns a page of items in display order
// @Summary List clipboard items
// @Description Cursor-paginated listing ordered by manual weight then recency; search filters by substring over text content and file name
// @Tags items
// @Produce json
// @Param search query string false "Substring filter"
// @Param cursor query string false "Opaque cursor from a previous page"
// @Param limit query int false "Page size (max 48)"
// @Success 200 {object} ListResponse
// @Failure 400 {object} map[string]string "Malformed cursor"
// @Security BearerAuth
// @Router /clipboard [get]
func (h *Handler) List(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	page, err := h.index.List(c.Query("search"), c.Query("cursor"), limit)
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp := ListResponse{
		Items:      make([]ItemResponse, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for i := range page.Items {
		resp.Items[i] = itemToResponse(&page.Items[i])
	}
	c.JSON(http.StatusOK, resp)
}

// Create stores a new item from a multipart form
// @Summary Create a clipboard item
// @Description Multipart body with a type, optional text content, and an optional file; small files are inlined, large ones streamed to disk
// @Tags items
// @Accept multipart/form-data
// @Produce json
// @Param type formData string false "TEXT, IMAGE or FILE"
// @Param content formData string false "Text content"
// @Param file formData file false "File payload"
// @Success 201 {object} ItemResponse
// @Failure 400 {object} map[string]string "Neither content nor file given"
// @Failure 413 {object} map[string]string "File exceeds upload limit"
// @Security BearerAuth
// @Router /clipboard [post]
func (h *Handler) Create(c *gin.Context) {
	req := storage.PutRequest{
		Kind:         models.ItemKind(c.PostForm("type")),
		DeclaredSize: -1,
	}
	if content := c.PostForm("content"); content != "" {
		req.Content = &content
	}

	fileHeader, err := c.FormFile("file")
	if err == nil && fileHeader != nil {
		f, err := fileHeader.Open()
		if err != nil {
			h.renderError(c, err)
			return
		}
		defer f.Close()
		req.File = f
		req.FileName = fileHeader.Filename
		req.MimeType = fileHeader.Header.Get("Content-Type")
		req.DeclaredSize = fileHeader.Size
	}

	item, err := h.store.Put(req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp := itemToResponse(item)
	h.hub.Broadcast(events.EventItemCreated, resp)
	c.JSON(http.StatusCreated, resp)
}

// Get returns a single item's metadata
// @Summary Get a clipboard item
// @Tags items
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} ItemResponse
// @Failure 404 {object} map[string]string "Unknown item"
// @Security BearerAuth
// @Router /clipboard/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	item, err := h.store.Get(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemToResponse(item))
}

// Delete removes an item, its payload and all of its share links
// @Summary Delete a clipboard item
// @Description Removes the record, the on-disk payload if any, and cascades deletion of every share link referencing the item
// @Tags items
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string "Unknown item"
// @Security BearerAuth
// @Router /clipboard/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		h.renderError(c, err)
		return
	}
	h.hub.Broadcast(events.EventItemDeleted, gin.H{"id": id})
	c.JSON(http.StatusOK, gin.H{"message": "Item deleted"})
}

// Reorder applies a manual top-to-bottom order to the given items
// @Summary Reorder clipboard items
// @Description The listed items will render in exactly this relative order, above everything else; unknown ids are skipped
// @Tags items
// @Accept json
// @Produce json
// @Param request body ReorderRequest true "Desired order"
// @Success 200 {object} map[string]bool
// @Security BearerAuth
// @Router /clipboard/reorder [post]
func (h *Handler) Reorder(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.index.Reorder(req.IDs); err != nil {
		h.renderError(c, err)
		return
	}

	h.hub.Broadcast(events.EventItemsReordered, gin.H{"ids": req.IDs})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ReadPayload streams an item's payload bytes
// @Summary Read an item's payload
// @Description Byte stream with inline disposition by default; pass download=1 for attachment disposition
// @Tags items
// @Produce application/octet-stream
// @Param id path string true "Item ID"
// @Param download query bool false "Attachment disposition"
// @Success 200 {string} string "payload bytes"
// @Failure 404 {object} map[string]string "Unknown item or missing file"
// @Security BearerAuth
// @Router /files/{id} [get]
func (h *Handler) ReadPayload(c *gin.Context) {
	item, err := h.store.Get(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	reader, size, err := h.store.OpenPayload(item)
	if err != nil {
		h.renderError(c, err)
		return
	}
	defer reader.Close()

	wantDownload := isTruthy(c.Query("download"))
	filename := "download"
	if item.FileName != nil && *item.FileName != "" {
		filename = *item.FileName
	}
	contentType := "application/octet-stream"
	if item.MimeType != nil && *item.MimeType != "" {
		contentType = *item.MimeType
	} else if item.Kind == models.KindText && !item.HasFile() {
		contentType = "text/plain; charset=utf-8"
	}

	disp := "inline"
	if wantDownload {
		disp = "attachment"
	}
	c.Header("Content-Disposition", disp+"; filename*=UTF-8''"+url.PathEscape(filename))

	if size >= 0 {
		c.DataFromReader(http.StatusOK, size, contentType, reader, nil)
		return
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	io.Copy(c.Writer, reader) //nolint:errcheck // client went away
}

// RegisterRoutes registers item routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/clipboard", h.List)
	rg.POST("/clipboard", h.Create)
	rg.POST("/clipboard/reorder", h.Reorder)
	rg.GET("/clipboard/:id", h.Get)
	rg.DELETE("/clipboard/:id", h.Delete)
	rg.GET("/files/:id", h.ReadPayload)
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "yes", "TRUE", "True":
		return true
	}
	return false
}
