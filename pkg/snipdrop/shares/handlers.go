package shares

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"github.com/mikepea/snipdrop/pkg/snipdrop/storage"
	"github.com/sirupsen/logrus"
)

// credentialCookiePrefix scopes the stored credential to one share token
const credentialCookiePrefix = "share_auth_"

// credentialMaxAge matches the credential JWT lifetime
const credentialMaxAge = 7 * 24 * time.Hour

// Handler handles share-link requests
type Handler struct {
	manager *Manager
	baseURL string
	log     *logrus.Logger
}

// NewHandler creates a new shares handler
func NewHandler(manager *Manager, baseURL string, log *logrus.Logger) *Handler {
	return &Handler{manager: manager, baseURL: baseURL, log: log}
}

// CreateShareRequest represents the request to create a share link
type CreateShareRequest struct {
	ItemID       string `json:"itemId" binding:"required"`
	ExpiresIn    int64  `json:"expiresIn"`
	ExpiresAt    string `json:"expiresAt"`
	MaxDownloads *int64 `json:"maxDownloads"`
	Password     string `json:"password"`
}

// ResetShareRequest represents the request to rotate a share link
type ResetShareRequest struct {
	ExpiresIn    *int64  `json:"expiresIn"`
	ExpiresAt    string  `json:"expiresAt"`
	MaxDownloads *int64  `json:"maxDownloads"`
	Password     *string `json:"password"`
}

// ItemSummary is the item metadata exposed alongside a share link
type ItemSummary struct {
	ID       string          `json:"id"`
	Kind     models.ItemKind `json:"type"`
	FileName *string         `json:"fileName,omitempty"`
	FileSize *int64          `json:"fileSize,omitempty"`
	MimeType *string         `json:"mimeType,omitempty"`
}

// ShareResponse represents a share link in API responses
type ShareResponse struct {
	Token            string       `json:"token"`
	URL              string       `json:"url"`
	Item             *ItemSummary `json:"item,omitempty"`
	ItemID           string       `json:"itemId"`
	ExpiresAt        *time.Time   `json:"expiresAt"`
	MaxDownloads     *int64       `json:"maxDownloads"`
	DownloadCount    int64        `json:"downloadCount"`
	Revoked          bool         `json:"revoked"`
	RequiresPassword bool         `json:"requiresPassword"`
	CreatedAt        string       `json:"created_at"`
}

func itemToSummary(item *models.Item) *ItemSummary {
	if item == nil {
		return nil
	}
	return &ItemSummary{
		ID:       item.ID,
		Kind:     item.Kind,
		FileName: item.FileName,
		FileSize: item.FileSize,
		MimeType: item.MimeType,
	}
}

func (h *Handler) shareToResponse(link *models.ShareLink, item *models.Item) ShareResponse {
	return ShareResponse{
		Token:            link.Token,
		URL:              h.baseURL + "/s/" + link.Token,
		Item:             itemToSummary(item),
		ItemID:           link.ItemID,
		ExpiresAt:        link.ExpiresAt,
		MaxDownloads:     link.MaxDownloads,
		DownloadCount:    link.DownloadCount,
		Revoked:          link.Revoked,
		RequiresPassword: link.RequiresPassword(),
		CreatedAt:        link.CreatedAt.Format(time.RFC3339),
	}
}

// renderError maps share-layer failures to responses. Every invalid-link
// reason collapses to the same 404 so a caller cannot probe whether a token
// is unknown, revoked, expired or exhausted.
func (h *Handler) renderError(c *gin.Context, err error) {
	if _, ok := IsInvalid(err); ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Share not found"})
		return
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, ErrNoPasswordSet):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No password set"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, storage.ErrPayloadMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": "File content missing"})
	case errors.Is(err, storage.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
	default:
		h.log.WithError(err).Error("share operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func parseExpiresAt(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func credential(c *gin.Context, token string) string {
	cookie, err := c.Cookie(credentialCookiePrefix + token)
	if err != nil {
		return ""
	}
	return cookie
}

// Create issues a share link for an item
// @Summary Create a share link
// @Description Create an expiring, optionally password-protected public link to one item
// @Tags shares
// @Accept json
// @Produce json
// @Param request body CreateShareRequest true "Share policy"
// @Success 201 {object} ShareResponse
// @Failure 404 {object} map[string]string "Item not found"
// @Router /share [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expiresAt, ok := parseExpiresAt(req.ExpiresAt)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expiresAt"})
		return
	}

	link, err := h.manager.Create(CreateRequest{
		ItemID:       req.ItemID,
		ExpiresAt:    expiresAt,
		ExpiresIn:    req.ExpiresIn,
		MaxDownloads: req.MaxDownloads,
		Password:     req.Password,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.shareToResponse(link, nil))
}

// List returns a page of share links
// @Summary List share links
// @Description List share links, optionally scoped to one item; invalid links are filtered at read time unless includeInvalid is set
// @Tags shares
// @Produce json
// @Param itemId query string false "Filter by item"
// @Param includeInvalid query bool false "Include revoked/expired/exhausted links"
// @Param page query int false "Page number (1-based)"
// @Param pageSize query int false "Page size (max 100)"
// @Success 200 {object} map[string]interface{}
// @Router /share [get]
func (h *Handler) List(c *gin.Context) {
	itemID := c.Query("itemId")
	includeInvalid := isTruthy(c.Query("includeInvalid")) || isTruthy(c.Query("includeRevoked"))
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "pageSize", 20)

	entries, hasMore, err := h.manager.List(itemID, includeInvalid, page, pageSize)
	if err != nil {
		h.renderError(c, err)
		return
	}

	data := make([]ShareResponse, len(entries))
	for i, e := range entries {
		data[i] = h.shareToResponse(&e.Link, e.Item)
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     data,
		"page":     page,
		"pageSize": pageSize,
		"hasMore":  hasMore,
	})
}

// GetMeta returns a share link's metadata and auth state
// @Summary Get share metadata
// @Description Item summary plus validity and auth state; text content included only once authorized
// @Tags shares
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "Unknown or invalid token"
// @Router /share/{token} [get]
func (h *Handler) GetMeta(c *gin.Context) {
	token := c.Param("token")

	link, item, err := h.manager.Resolve(token)
	if err != nil {
		h.renderError(c, err)
		return
	}

	authorized := h.manager.authorize(link, credential(c, token)) == nil

	summary := gin.H{
		"id":         item.ID,
		"type":       item.Kind,
		"fileName":   item.FileName,
		"fileSize":   item.FileSize,
		"mimeType":   item.MimeType,
		"created_at": item.CreatedAt,
		"updated_at": item.UpdatedAt,
	}
	// Text content is gated behind the password-granted credential
	if authorized && item.Kind == models.KindText {
		summary["content"] = item.Content
	}

	c.JSON(http.StatusOK, gin.H{
		"token":            token,
		"item":             summary,
		"expiresAt":        link.ExpiresAt,
		"maxDownloads":     link.MaxDownloads,
		"downloadCount":    link.DownloadCount,
		"requiresPassword": link.RequiresPassword(),
		"authorized":       authorized,
	})
}

// VerifyPasswordRequest represents the share password verification body
type VerifyPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// Verify checks a share password and grants a scoped credential
// @Summary Verify a share password
// @Description Check the link password; on success a credential cookie scoped to this token is set
// @Tags shares
// @Accept json
// @Produce json
// @Param token path string true "Share token"
// @Param request body VerifyPasswordRequest true "Password candidate"
// @Success 200 {object} map[string]bool
// @Failure 401 {object} map[string]string "Wrong password"
// @Router /share/{token}/verify [post]
func (h *Handler) Verify(c *gin.Context) {
	token := c.Param("token")

	var req VerifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred, err := h.manager.VerifyPassword(token, req.Password)
	if err != nil {
		h.renderError(c, err)
		return
	}

	secure := c.GetHeader("X-Forwarded-Proto") == "https" || c.Request.TLS != nil
	c.SetCookie(credentialCookiePrefix+token, cred, int(credentialMaxAge.Seconds()), "/", "", secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Download streams the shared payload as an attachment and counts it
// @Summary Download a shared payload
// @Description Stream the payload with attachment disposition; consumes one download against the link's quota
// @Tags shares
// @Produce application/octet-stream
// @Param token path string true "Share token"
// @Success 200 {string} string "payload bytes"
// @Failure 404 {object} map[string]string "Unknown or invalid token"
// @Router /share/{token}/download [get]
func (h *Handler) Download(c *gin.Context) {
	h.stream(c, true)
}

// ViewFile streams the shared payload inline for in-browser display
// @Summary View a shared payload
// @Description Stream the payload with inline disposition; does not consume download quota
// @Tags shares
// @Produce application/octet-stream
// @Param token path string true "Share token"
// @Success 200 {string} string "payload bytes"
// @Failure 404 {object} map[string]string "Unknown or invalid token"
// @Router /share/{token}/file [get]
func (h *Handler) ViewFile(c *gin.Context) {
	h.stream(c, false)
}

func (h *Handler) stream(c *gin.Context, download bool) {
	token := c.Param("token")

	open := h.manager.View
	if download {
		open = h.manager.Download
	}
	reader, size, _, item, err := open(token, credential(c, token))
	if err != nil {
		h.renderError(c, err)
		return
	}
	defer reader.Close()

	filename := "download"
	if item.FileName != nil && *item.FileName != "" {
		filename = *item.FileName
	}
	contentType := "application/octet-stream"
	if item.Kind == models.KindText && !item.HasFile() {
		contentType = "text/plain; charset=utf-8"
		filename += ".txt"
	} else if item.MimeType != nil && *item.MimeType != "" {
		contentType = *item.MimeType
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", contentDisposition(download, filename))
	writeStream(c, reader, size, contentType)
}

// Revoke permanently disables a share link
// @Summary Revoke a share link
// @Description One-way revocation; revoking an already-revoked link succeeds
// @Tags shares
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} map[string]string "Unknown token"
// @Router /share/{token}/revoke [post]
func (h *Handler) Revoke(c *gin.Context) {
	if err := h.manager.Revoke(c.Param("token")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete removes a share link record
// @Summary Delete a share link
// @Tags shares
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} map[string]string "Unknown token"
// @Router /share/{token} [delete]
func (h *Handler) Delete(c *gin.Context) {
	if err := h.manager.Delete(c.Param("token")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Reset rotates a share link's token
// @Summary Reset a share link
// @Description Replace the token with a fresh one; unspecified policy fields carry over, the download counter restarts
// @Tags shares
// @Accept json
// @Produce json
// @Param token path string true "Share token"
// @Param request body ResetShareRequest true "Policy overrides"
// @Success 200 {object} ShareResponse
// @Failure 404 {object} map[string]string "Unknown token"
// @Router /share/{token}/reset [post]
func (h *Handler) Reset(c *gin.Context) {
	h.reset(c, ResetRequest{Token: c.Param("token")})
}

// ResetByItem rotates the most recent share link of an item
// @Summary Reset an item's share link
// @Description Rotate the newest link of the given item, preserving policy unless overridden
// @Tags shares
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param request body ResetShareRequest true "Policy overrides"
// @Success 200 {object} ShareResponse
// @Failure 404 {object} map[string]string "No link for item"
// @Router /clipboard/{id}/share [put]
func (h *Handler) ResetByItem(c *gin.Context) {
	h.reset(c, ResetRequest{ItemID: c.Param("id")})
}

func (h *Handler) reset(c *gin.Context, base ResetRequest) {
	// A bare POST with no body is a plain rotation with no overrides
	var req ResetShareRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expiresAt, ok := parseExpiresAt(req.ExpiresAt)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expiresAt"})
		return
	}

	base.ExpiresAt = expiresAt
	base.ExpiresIn = req.ExpiresIn
	base.MaxDownloads = req.MaxDownloads
	base.Password = req.Password

	link, err := h.manager.Reset(base)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.shareToResponse(link, nil))
}

// RegisterRoutes registers the protected share management routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/share", h.Create)
	rg.GET("/share", h.List)
	rg.DELETE("/share/:token", h.Delete)
	rg.POST("/share/:token/revoke", h.Revoke)
	rg.POST("/share/:token/reset", h.Reset)
	rg.PUT("/clipboard/:id/share", h.ResetByItem)
}

// RegisterPublicRoutes registers the routes reachable with only a token
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/share/:token", h.GetMeta)
	rg.POST("/share/:token/verify", h.Verify)
	rg.GET("/share/:token/file", h.ViewFile)
	rg.GET("/share/:token/download", h.Download)
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "yes", "TRUE", "True":
		return true
	}
	return false
}

func intQuery(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// contentDisposition renders an RFC 5987 disposition header so non-ASCII
// filenames survive
func contentDisposition(attachment bool, filename string) string {
	disp := "inline"
	if attachment {
		disp = "attachment"
	}
	return disp + "; filename*=UTF-8''" + url.PathEscape(filename)
}

// writeStream sends the payload, using chunked transfer when size is unknown
func writeStream(c *gin.Context, reader io.Reader, size int64, contentType string) {
	if size >= 0 {
		c.DataFromReader(http.StatusOK, size, contentType, reader, nil)
		return
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	io.Copy(c.Writer, reader) //nolint:errcheck // client went away
}
