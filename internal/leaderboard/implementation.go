// internal/leaderboard/implementation.go
package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// service implements the Service interface on Postgres.
type service struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewService creates a new leaderboard projection instance.
func NewService(db *sql.DB, logger *logrus.Entry) Service {
	return &service{db: db, logger: logger}
}

// Rank serves the cached projection.
func (s *service) Rank(ctx context.Context, limit int) ([]Standing, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, balance
		FROM leaderboard
		ORDER BY balance DESC, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var standings []Standing
	for rows.Next() {
		st := Standing{Rank: len(standings) + 1}
		if err := rows.Scan(&st.MemberID, &st.Balance); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate standings: %w", err)
	}
	return standings, nil
}

// Rebuild repopulates the projection purely from ledger-derived balances in
// one transaction; readers see the old ranking or the new one, never a mix.
func (s *service) Rebuild(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM leaderboard`); err != nil {
		return fmt.Errorf("clear leaderboard: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO leaderboard (member_id, balance, created_at, rebuilt_at)
		SELECT t.member_id,
		       COALESCE(SUM(t.delta), 0),
		       COALESCE(MIN(c.created_at), MIN(t.created_at)),
		       NOW()
		FROM ledger_transactions t
		LEFT JOIN connections c ON c.chat_id = t.member_id
		GROUP BY t.member_id
	`)
	if err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	n, _ := res.RowsAffected()
	s.logger.WithField("members", n).Info("leaderboard rebuilt")
	return nil
}

func (s *service) RebuiltAt(ctx context.Context) (time.Time, error) {
	var at sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MAX(rebuilt_at) FROM leaderboard`).Scan(&at)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("query rebuilt_at: %w", err)
	}
	if !at.Valid {
		return time.Time{}, nil
	}
	return at.Time, nil
}
