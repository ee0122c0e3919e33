package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	sessionIssuer   = "snipdrop"
	sessionDuration = 7 * 24 * time.Hour

	// share credentials live as long as the session cookie the original
	// deployment used
	shareCredentialDuration = 7 * 24 * time.Hour
)

// SessionClaims represents the instance-session JWT claims
type SessionClaims struct {
	jwt.RegisteredClaims
}

// ShareClaims represents a per-share-link credential: proof that the caller
// has verified the link's password. Scoped to exactly one token.
type ShareClaims struct {
	ShareToken string `json:"share_token"`
	jwt.RegisteredClaims
}

// getJWTSecret returns the JWT secret from environment or a default for development
func getJWTSecret() []byte {
	secret := os.Getenv("SNIPDROP_JWT_SECRET")
	if secret == "" {
		// Default for development only - should be set in production
		secret = "snipdrop-dev-secret-change-in-production"
	}
	return []byte(secret)
}

// GenerateSessionToken creates a new session JWT for the instance password gate
func GenerateSessionToken() (string, error) {
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    sessionIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(getJWTSecret())
}

// ValidateSessionToken validates a session JWT
func ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := parseInto(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// GenerateShareCredential creates a credential bound to one share token,
// granted after a successful password verification
func GenerateShareCredential(shareToken string) (string, error) {
	claims := &ShareClaims{
		ShareToken: shareToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(shareCredentialDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    sessionIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(getJWTSecret())
}

// ValidateShareCredential validates a share credential and checks it is bound
// to the expected share token
func ValidateShareCredential(credential, shareToken string) error {
	claims := &ShareClaims{}
	if err := parseInto(credential, claims); err != nil {
		return err
	}
	if claims.ShareToken != shareToken {
		return ErrInvalidToken
	}
	return nil
}

func parseInto(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return getJWTSecret(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
