// internal/submission/domain.go
package submission

import (
	"errors"
	"fmt"
	"time"
)

var ErrAlreadySubmitted = errors.New("post already submitted")

// DailyLimitExceededError rejects a submission once the member has used up
// the tier's daily allowance. Expected outcome, not a failure.
type DailyLimitExceededError struct {
	Limit int
	Used  int
}

func (e *DailyLimitExceededError) Error() string {
	return fmt.Sprintf("daily submission limit reached (%d/%d today)", e.Used, e.Limit)
}

// InsufficientBalanceError rejects a submission the member cannot pay for.
type InsufficientBalanceError struct {
	Cost    int64
	Balance int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: submission costs %d points, balance is %d", e.Cost, e.Balance)
}

// Submission is a tracked post. It stays open (eligible for engagement
// polling) until its expiry horizon, then transitions to closed and is kept
// for audit.
type Submission struct {
	PostID      string    `json:"post_id"`
	MemberID    string    `json:"member_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Likes       int64     `json:"likes"`
	Reshares    int64     `json:"reshares"`
	Replies     int64     `json:"replies"`
	Closed      bool      `json:"closed"`
}

// Expired reports whether the post is past its expiry horizon.
func (s *Submission) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// DayKey returns the calendar-day key used to scope submission counters.
// Counters reset implicitly at the day boundary in the given location.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
