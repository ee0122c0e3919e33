package models

import "time"

// InvalidReason explains why a share link no longer grants access
type InvalidReason string

const (
	ReasonNotFound  InvalidReason = "notFound"
	ReasonRevoked   InvalidReason = "revoked"
	ReasonExpired   InvalidReason = "expired"
	ReasonExhausted InvalidReason = "exhausted"
)

// ShareLink is a bearer capability granting access to one item's payload
type ShareLink struct {
	Token         string     `gorm:"primarykey" json:"token"`
	ItemID        string     `gorm:"not null;index" json:"itemId"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	MaxDownloads  *int64     `json:"maxDownloads,omitempty"`
	DownloadCount int64      `gorm:"default:0" json:"downloadCount"`
	Revoked       bool       `gorm:"default:false" json:"revoked"`
	PasswordHash  *string    `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RequiresPassword reports whether a password must be verified before access
func (s *ShareLink) RequiresPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// InvalidReasonAt classifies the link's state at the given instant. An empty
// reason means the link is valid. Revocation is checked first, then expiry,
// then quota; whichever condition trips first wins.
func (s *ShareLink) InvalidReasonAt(now time.Time) InvalidReason {
	if s.Revoked {
		return ReasonRevoked
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return ReasonExpired
	}
	if s.MaxDownloads != nil && *s.MaxDownloads >= 0 && s.DownloadCount >= *s.MaxDownloads {
		return ReasonExhausted
	}
	return ""
}

// ValidAt reports whether the link still grants access at the given instant
func (s *ShareLink) ValidAt(now time.Time) bool {
	return s.InvalidReasonAt(now) == ""
}
