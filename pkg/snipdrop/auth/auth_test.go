package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse" {
		t.Errorf("Hash should not equal the plaintext")
	}
	if !CheckPasswordHash("correct horse", hash) {
		t.Errorf("Expected matching password to verify")
	}
	if CheckPasswordHash("battery staple", hash) {
		t.Errorf("Expected wrong password to fail")
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}
	if _, err := ValidateSessionToken(token); err != nil {
		t.Errorf("ValidateSessionToken failed: %v", err)
	}
	if _, err := ValidateSessionToken("garbage.token.here"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestShareCredentialBinding(t *testing.T) {
	credential, err := GenerateShareCredential("token-one")
	if err != nil {
		t.Fatalf("GenerateShareCredential failed: %v", err)
	}
	if err := ValidateShareCredential(credential, "token-one"); err != nil {
		t.Errorf("Expected credential to validate for its token: %v", err)
	}
	if err := ValidateShareCredential(credential, "token-two"); err == nil {
		t.Errorf("Expected credential rejected for a different token")
	}

	// Session tokens must not double as share credentials
	session, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}
	if err := ValidateShareCredential(session, "token-one"); err == nil {
		t.Errorf("Expected session token rejected as share credential")
	}
}

func setupGateRouter(t *testing.T, password string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	gate, err := NewGate(password)
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	handler := NewHandler(gate)

	r := gin.New()
	handler.RegisterRoutes(r.Group("/api/auth"))
	protected := r.Group("/api", gate.Middleware())
	protected.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})
	return r
}

func verify(t *testing.T, r *gin.Engine, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(VerifyRequest{Password: password})
	req, _ := http.NewRequest("POST", "/api/auth/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareRejectsWithoutSession(t *testing.T) {
	r := setupGateRouter(t, "instance-pw")

	req, _ := http.NewRequest("GET", "/api/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestVerifyGrantsAccess(t *testing.T) {
	r := setupGateRouter(t, "instance-pw")

	w := verify(t, r, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", w.Code)
	}

	w = verify(t, r, "instance-pw")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("Expected a session token in the response")
	}

	// Bearer header works for scripted clients
	req, _ := http.NewRequest("GET", "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Errorf("Expected 200 with bearer token, got %d", w2.Code)
	}

	// The session cookie works for browsers
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatalf("Expected session cookie")
	}
	req, _ = http.NewRequest("GET", "/api/ping", nil)
	req.AddCookie(cookie)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req)
	if w3.Code != http.StatusOK {
		t.Errorf("Expected 200 with session cookie, got %d", w3.Code)
	}
}

func TestDisabledGateLetsEverythingThrough(t *testing.T) {
	r := setupGateRouter(t, "")

	req, _ := http.NewRequest("GET", "/api/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected open access with no password, got %d", w.Code)
	}

	w = verify(t, r, "anything")
	if w.Code != http.StatusOK {
		t.Errorf("Expected verify to succeed trivially, got %d", w.Code)
	}
}

func TestMiddlewareRejectsGarbageToken(t *testing.T) {
	r := setupGateRouter(t, "instance-pw")

	req, _ := http.NewRequest("GET", "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for invalid token, got %d", w.Code)
	}
}
