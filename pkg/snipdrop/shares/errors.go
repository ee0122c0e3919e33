package shares

import (
	"errors"
	"fmt"

	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
)

var (
	// ErrUnauthorized means the password or credential did not match
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoPasswordSet means password verification was attempted on a link
	// that has no password
	ErrNoPasswordSet = errors.New("no password set on share link")
)

// InvalidError means a share link no longer grants access. The reason feeds
// internal logging and messaging; the HTTP layer collapses every reason to
// the same "not found" so callers cannot probe which one applies.
type InvalidError struct {
	Reason models.InvalidReason
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("share link invalid: %s", e.Reason)
}

// IsInvalid reports whether err is an InvalidError and returns its reason
func IsInvalid(err error) (models.InvalidReason, bool) {
	var ie *InvalidError
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	return "", false
}
