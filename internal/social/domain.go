// internal/social/domain.go
package social

import "errors"

var (
	// ErrRateLimited means the upstream API refused the request with a
	// rate-limit status. The caller should abort the remainder of its
	// cycle and come back on the next one.
	ErrRateLimited = errors.New("social api rate limited")
	// ErrPostGone means the post no longer exists upstream.
	ErrPostGone = errors.New("post deleted upstream")
)

// Engagement is a point-in-time snapshot of a post's engagement. The API
// reports cumulative totals, never deltas. Actor lists are present only
// where the upstream exposes actor-level data; a nil list means the type is
// countable but not attributable.
type Engagement struct {
	PostID    string   `json:"post_id"`
	Likes     int64    `json:"likes"`
	Reshares  int64    `json:"reshares"`
	Replies   int64    `json:"replies"`
	Likers    []string `json:"likers,omitempty"`
	Resharers []string `json:"resharers,omitempty"`
	Repliers  []string `json:"repliers,omitempty"`
}
