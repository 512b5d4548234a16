// internal/submission/store.go
package submission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"engagepulse/pkg/ledgerstore"
)

// PostgresStore persists submissions and daily counters, and commits the
// acceptance side effects in a single transaction with the ledger debit.
type PostgresStore struct {
	db     *sql.DB
	ledger *ledgerstore.Store
}

func NewPostgresStore(db *sql.DB, ledger *ledgerstore.Store) *PostgresStore {
	return &PostgresStore{db: db, ledger: ledger}
}

// DailyCount returns how many submissions the member has made on the given
// day. Missing counter means zero.
func (s *PostgresStore) DailyCount(ctx context.Context, memberID, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM submission_counters WHERE member_id = $1 AND day = $2
	`, memberID, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query daily counter: %w", err)
	}
	return count, nil
}

// Create atomically inserts the submission, increments the day counter and
// appends the debit transaction. A duplicate post id for the same member
// fails the whole transaction with ErrAlreadySubmitted. The counter row
// serializes concurrent submissions for the same member and day, so the
// daily limit holds even against racing requests.
func (s *PostgresStore) Create(ctx context.Context, sub *Submission, cost int64, limit int, day string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO submissions (post_id, member_id, submitted_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, sub.PostID, sub.MemberID, sub.SubmittedAt, sub.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadySubmitted
		}
		return fmt.Errorf("insert submission: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO submission_counters (member_id, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (member_id, day) DO UPDATE
		SET count = submission_counters.count + 1
		RETURNING count
	`, sub.MemberID, day).Scan(&count)
	if err != nil {
		return fmt.Errorf("increment daily counter: %w", err)
	}
	if count > limit {
		return &DailyLimitExceededError{Limit: limit, Used: count - 1}
	}

	if cost > 0 {
		_, err := s.ledger.AppendIn(ctx, tx, ledgerstore.Entry{
			MemberID: sub.MemberID,
			Delta:    -cost,
			Reason:   ledgerstore.ReasonSubmissionDebit,
			PostID:   sub.PostID,
			Actor:    "gatekeeper",
		})
		if err != nil {
			return fmt.Errorf("debit submission cost: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListOpen enumerates submissions not yet transitioned to closed, including
// any past their horizon that still need the terminal transition.
func (s *PostgresStore) ListOpen(ctx context.Context) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, member_id, submitted_at, expires_at, likes, reshares, replies, closed
		FROM submissions
		WHERE NOT closed
		ORDER BY submitted_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query open submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// ListByMember returns the member's most recent submissions.
func (s *PostgresStore) ListByMember(ctx context.Context, memberID string, limit int) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, member_id, submitted_at, expires_at, likes, reshares, replies, closed
		FROM submissions
		WHERE member_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// UpdateMetrics advances a submission's cumulative observed counts and,
// when past its horizon, transitions it to closed. Called only after the
// cycle has finished lock/credit processing for the submission.
func (s *PostgresStore) UpdateMetrics(ctx context.Context, postID, memberID string, likes, reshares, replies int64, closed bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET likes = $3, reshares = $4, replies = $5, closed = $6
		WHERE post_id = $1 AND member_id = $2
	`, postID, memberID, likes, reshares, replies, closed)
	if err != nil {
		return fmt.Errorf("update submission metrics: %w", err)
	}
	return nil
}

func scanSubmissions(rows *sql.Rows) ([]*Submission, error) {
	var subs []*Submission
	for rows.Next() {
		sub := &Submission{}
		if err := rows.Scan(
			&sub.PostID,
			&sub.MemberID,
			&sub.SubmittedAt,
			&sub.ExpiresAt,
			&sub.Likes,
			&sub.Reshares,
			&sub.Replies,
			&sub.Closed,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}
