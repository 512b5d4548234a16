// internal/social/mock.go
package social

import (
	"context"
	"sync"
)

// Mock is an in-memory stand-in for the external API, used in development
// mode and tests.
type Mock struct {
	mu          sync.Mutex
	engagements map[string]*Engagement
	err         error
	fetches     int
}

func NewMock() *Mock {
	return &Mock{engagements: make(map[string]*Engagement)}
}

// SetEngagement installs the snapshot returned for a post.
func (m *Mock) SetEngagement(postID string, eng *Engagement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eng.PostID = postID
	m.engagements[postID] = eng
}

// SetError makes every Fetch fail with err until cleared.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Fetches reports how many Fetch calls were made.
func (m *Mock) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func (m *Mock) Fetch(ctx context.Context, postID string) (*Engagement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++

	if m.err != nil {
		return nil, m.err
	}
	eng, ok := m.engagements[postID]
	if !ok {
		return nil, ErrPostGone
	}
	cp := *eng
	return &cp, nil
}
