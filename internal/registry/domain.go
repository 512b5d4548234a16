// internal/registry/domain.go
package registry

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotLinked     = errors.New("no connection for chat id")
	ErrHandleUnknown = errors.New("no connection for handle")
	ErrHandleTaken   = errors.New("handle already linked to another member")
	ErrInvalidHandle = errors.New("invalid social handle")
)

// Connection binds a chat-platform identity to a social-media handle and a
// tier. At most one active connection exists per chat id.
type Connection struct {
	ChatID    string    `json:"chat_id"`
	Handle    string    `json:"handle"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{1,15}$`)

// NormalizeHandle lowercases a handle and strips surrounding whitespace and
// leading "@"s. Handles are matched case-insensitively everywhere;
// normalization is idempotent so lock keys and index lookups always agree.
func NormalizeHandle(handle string) string {
	h := strings.TrimLeft(strings.TrimSpace(handle), "@")
	return strings.ToLower(strings.TrimSpace(h))
}

// ValidateHandle normalizes and validates a handle.
func ValidateHandle(handle string) (string, error) {
	h := NormalizeHandle(handle)
	if !handlePattern.MatchString(h) {
		return "", ErrInvalidHandle
	}
	return h, nil
}
