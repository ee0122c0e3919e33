// Package shares issues, validates and revokes the capability tokens that
// grant time/quota/password-bounded public access to one item's payload.
package shares

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mikepea/snipdrop/pkg/snipdrop/auth"
	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"github.com/mikepea/snipdrop/pkg/snipdrop/storage"
	"github.com/sirupsen/logrus"
)

// tokenBytes gives 144 bits of entropy, URL-safe encoded
const tokenBytes = 18

// Manager owns the share-link lifecycle
type Manager struct {
	links storage.ShareLinkRepository
	store *storage.Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewManager creates a share-link manager
func NewManager(links storage.ShareLinkRepository, store *storage.Store, log *logrus.Logger) *Manager {
	return &Manager{
		links: links,
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// CreateRequest describes a new share link
type CreateRequest struct {
	ItemID string
	// ExpiresAt wins over ExpiresIn when both are given
	ExpiresAt *time.Time
	// ExpiresIn is a lifetime in seconds; zero or negative means unbounded
	ExpiresIn    int64
	MaxDownloads *int64
	Password     string
}

// generateToken returns an unguessable URL-safe token
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashPassword digests the password with the token as a per-link salt, so an
// identical password on two links never yields the same stored hash
func hashPassword(password, token string) string {
	h := sha256.New()
	h.Write([]byte(password))
	h.Write([]byte("|"))
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// Create issues a new share link for an existing item
func (m *Manager) Create(req CreateRequest) (*models.ShareLink, error) {
	if _, err := m.store.Get(req.ItemID); err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}

	link := &models.ShareLink{
		Token:        token,
		ItemID:       req.ItemID,
		MaxDownloads: req.MaxDownloads,
	}
	if req.ExpiresAt != nil {
		link.ExpiresAt = req.ExpiresAt
	} else if req.ExpiresIn > 0 {
		t := m.now().Add(time.Duration(req.ExpiresIn) * time.Second)
		link.ExpiresAt = &t
	}
	if req.Password != "" {
		hash := hashPassword(req.Password, token)
		link.PasswordHash = &hash
	}

	if err := m.links.Create(link); err != nil {
		return nil, err
	}
	return link, nil
}

// Resolve loads a share link and its item, returning *InvalidError when the
// link is unknown, revoked, expired or exhausted
func (m *Manager) Resolve(token string) (*models.ShareLink, *models.Item, error) {
	link, err := m.links.GetByToken(token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, &InvalidError{Reason: models.ReasonNotFound}
		}
		return nil, nil, err
	}
	if reason := link.InvalidReasonAt(m.now()); reason != "" {
		return nil, nil, &InvalidError{Reason: reason}
	}
	item, err := m.store.Get(link.ItemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, &InvalidError{Reason: models.ReasonNotFound}
		}
		return nil, nil, err
	}
	return link, item, nil
}

// VerifyPassword checks a password candidate against the link's digest and,
// on success, issues a credential the caller can present on later reads
// without re-entering the password.
func (m *Manager) VerifyPassword(token, candidate string) (string, error) {
	link, _, err := m.Resolve(token)
	if err != nil {
		return "", err
	}
	if !link.RequiresPassword() {
		return "", ErrNoPasswordSet
	}
	if hashPassword(candidate, token) != *link.PasswordHash {
		return "", ErrUnauthorized
	}
	return auth.GenerateShareCredential(token)
}

// authorize rejects access to a password-protected link without a valid
// credential bound to that exact token
func (m *Manager) authorize(link *models.ShareLink, credential string) error {
	if !link.RequiresPassword() {
		return nil
	}
	if credential == "" {
		return ErrUnauthorized
	}
	if err := auth.ValidateShareCredential(credential, link.Token); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// Download streams the shared payload and counts it against the link's
// quota. Validity is checked before the increment; the increment itself is
// evaluated server-side so racing downloads never lose a count, and a failed
// increment is logged rather than blocking an otherwise-valid delivery.
func (m *Manager) Download(token, credential string) (io.ReadCloser, int64, *models.ShareLink, *models.Item, error) {
	return m.open(token, credential, true)
}

// View streams the shared payload for inline display without consuming quota
func (m *Manager) View(token, credential string) (io.ReadCloser, int64, *models.ShareLink, *models.Item, error) {
	return m.open(token, credential, false)
}

func (m *Manager) open(token, credential string, countDownload bool) (io.ReadCloser, int64, *models.ShareLink, *models.Item, error) {
	link, item, err := m.Resolve(token)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	if err := m.authorize(link, credential); err != nil {
		return nil, 0, nil, nil, err
	}

	if countDownload {
		if err := m.links.IncrementDownloads(token); err != nil {
			m.log.WithError(err).WithField("token", token).
				Warn("failed to record share download")
		} else {
			link.DownloadCount++
		}
	}

	reader, size, err := m.store.OpenPayload(item)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	return reader, size, link, item, nil
}

// Revoke flips the link's one-way revoked flag; revoking twice is not an error
func (m *Manager) Revoke(token string) error {
	return m.links.Revoke(token)
}

// Delete removes the share link record entirely
func (m *Manager) Delete(token string) error {
	return m.links.DeleteByToken(token)
}

// ResetRequest rotates a share link. Exactly one of Token or ItemID selects
// the link (ItemID picks the most recent). Nil policy fields preserve the
// previous value; the download counter always restarts at zero.
type ResetRequest struct {
	Token  string
	ItemID string
	// ExpiresAt wins over ExpiresIn when both are given
	ExpiresAt *time.Time
	// ExpiresIn is a new lifetime in seconds from now; 0 clears the expiry
	ExpiresIn *int64
	// MaxDownloads replaces the cap; nil preserves it
	MaxDownloads *int64
	// Password sets a new password ("" clears it). When nil the password
	// requirement is dropped: the stored digest is salted with the dead
	// token and cannot be carried over to the new one.
	Password *string
}

// Reset invalidates the old token and creates a replacement under the same
// policy unless overridden. The swap is atomic: the old token and its
// successor never coexist, and the old one never survives a failed insert.
func (m *Manager) Reset(req ResetRequest) (*models.ShareLink, error) {
	var old *models.ShareLink
	var err error
	switch {
	case req.Token != "":
		old, err = m.links.GetByToken(req.Token)
	case req.ItemID != "":
		old, err = m.links.LatestByItem(req.ItemID)
	default:
		return nil, storage.ErrInvalidInput
	}
	if err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}

	replacement := &models.ShareLink{
		Token:        token,
		ItemID:       old.ItemID,
		ExpiresAt:    old.ExpiresAt,
		MaxDownloads: old.MaxDownloads,
	}
	if req.ExpiresAt != nil {
		replacement.ExpiresAt = req.ExpiresAt
	} else if req.ExpiresIn != nil {
		if *req.ExpiresIn > 0 {
			t := m.now().Add(time.Duration(*req.ExpiresIn) * time.Second)
			replacement.ExpiresAt = &t
		} else {
			replacement.ExpiresAt = nil
		}
	}
	if req.MaxDownloads != nil {
		replacement.MaxDownloads = req.MaxDownloads
	}
	if req.Password != nil && *req.Password != "" {
		hash := hashPassword(*req.Password, token)
		replacement.PasswordHash = &hash
	}

	if err := m.links.Replace(old.Token, replacement); err != nil {
		return nil, err
	}
	return replacement, nil
}

// Entry is one row of a share listing: the link plus its item's summary
type Entry struct {
	Link models.ShareLink
	Item *models.Item
}

// List returns a page of share links, newest first. With includeInvalid
// false, expired/exhausted/revoked links are filtered at read time against
// the current clock and counters; there is no background sweep.
func (m *Manager) List(itemID string, includeInvalid bool, page, pageSize int) ([]Entry, bool, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	links, err := m.links.List(storage.ShareListQuery{
		ItemID: itemID,
		Limit:  pageSize + 1,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, false, err
	}

	// The sentinel row decides hasMore and must never leak into the page;
	// truncate before filtering, or an invalid row in the window would let
	// it slip through and repeat on the next page.
	hasMore := len(links) > pageSize
	if hasMore {
		links = links[:pageSize]
	}

	now := m.now()
	entries := make([]Entry, 0, len(links))
	for _, link := range links {
		if !includeInvalid && !link.ValidAt(now) {
			continue
		}
		item, err := m.store.Get(link.ItemID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, false, err
		}
		entries = append(entries, Entry{Link: link, Item: item})
	}
	return entries, hasMore, nil
}
