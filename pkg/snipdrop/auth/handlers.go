package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Gate implements the single-password access gate for the whole instance.
// The plaintext from the environment is bcrypt-hashed once at startup so
// later comparisons never touch the plaintext again.
type Gate struct {
	passwordHash string
}

// NewGate builds the gate; an empty password disables authentication entirely
func NewGate(password string) (*Gate, error) {
	g := &Gate{}
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		g.passwordHash = hash
	}
	return g, nil
}

// Enabled reports whether a password is configured
func (g *Gate) Enabled() bool {
	return g.passwordHash != ""
}

// Handler handles authentication requests
type Handler struct {
	gate *Gate
}

// NewHandler creates a new auth handler
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// VerifyRequest represents the password verification request body
type VerifyRequest struct {
	Password string `json:"password" binding:"required"`
}

// Verify checks the instance password and establishes a session
// @Summary Verify the instance password
// @Description Validate the access password and receive a session cookie plus bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Instance password"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string "Wrong password"
// @Router /auth/verify [post]
func (h *Handler) Verify(c *gin.Context) {
	if !h.gate.Enabled() {
		c.JSON(http.StatusOK, gin.H{"success": true, "required": false})
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !CheckPasswordHash(req.Password, h.gate.passwordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	}

	token, err := GenerateSessionToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.SetCookie(SessionCookie, token, int(sessionDuration.Seconds()), "/", "", requestIsSecure(c), true)
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

// Logout clears the session cookie
// @Summary Log out
// @Description Clear the session cookie
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", requestIsSecure(c), true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RegisterRoutes registers auth routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/verify", h.Verify)
	rg.POST("/logout", h.Logout)
}

// requestIsSecure reports whether the request arrived over https, honoring
// the X-Forwarded-Proto header set by a fronting proxy
func requestIsSecure(c *gin.Context) bool {
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		return strings.EqualFold(proto, "https")
	}
	return c.Request.TLS != nil
}
