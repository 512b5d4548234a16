// internal/ledger/implementation.go
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"engagepulse/pkg/ledgerstore"
)

var ErrInvalidAdjustment = errors.New("invalid adjustment")

// service implements the Service interface on top of the ledger store,
// with sqlx for history reads.
type service struct {
	store  *ledgerstore.Store
	dbx    *sqlx.DB
	logger *logrus.Entry
}

// NewService creates a new ledger service instance.
func NewService(store *ledgerstore.Store, dbx *sqlx.DB, logger *logrus.Entry) Service {
	return &service{store: store, dbx: dbx, logger: logger}
}

func (s *service) Balance(ctx context.Context, memberID string) (int64, error) {
	return s.store.Balance(ctx, memberID)
}

// History returns the member's most recent transactions, newest first.
func (s *service) History(ctx context.Context, memberID string, limit int) ([]ledgerstore.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []struct {
		ID        uuid.UUID      `db:"id"`
		MemberID  string         `db:"member_id"`
		Delta     int64          `db:"delta"`
		Reason    string         `db:"reason"`
		PostID    sql.NullString `db:"post_id"`
		Actor     string         `db:"actor"`
		Note      sql.NullString `db:"note"`
		CreatedAt time.Time      `db:"created_at"`
	}
	err := s.dbx.SelectContext(ctx, &rows, `
		SELECT id, member_id, delta, reason, post_id, actor, note, created_at
		FROM ledger_transactions
		WHERE member_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	txs := make([]ledgerstore.Transaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, ledgerstore.Transaction{
			ID:        r.ID,
			MemberID:  r.MemberID,
			Delta:     r.Delta,
			Reason:    r.Reason,
			PostID:    r.PostID.String,
			Actor:     r.Actor,
			Note:      r.Note.String,
			CreatedAt: r.CreatedAt,
		})
	}
	return txs, nil
}

// Adjust appends a manual-adjustment transaction. The negative-balance
// fail-safe in the store still applies: a correction cannot take a member
// below zero.
func (s *service) Adjust(ctx context.Context, memberID string, delta int64, actor, note string) (ledgerstore.Transaction, error) {
	if delta == 0 {
		return ledgerstore.Transaction{}, fmt.Errorf("%w: delta must be non-zero", ErrInvalidAdjustment)
	}
	if actor == "" {
		return ledgerstore.Transaction{}, fmt.Errorf("%w: admin actor is required", ErrInvalidAdjustment)
	}

	id, err := s.store.Append(ctx, ledgerstore.Entry{
		MemberID: memberID,
		Delta:    delta,
		Reason:   ledgerstore.ReasonManualAdjustment,
		Actor:    actor,
		Note:     note,
	})
	if err != nil {
		if errors.Is(err, ledgerstore.ErrNegativeBalance) {
			s.logger.WithFields(logrus.Fields{
				"member_id": memberID,
				"delta":     delta,
				"actor":     actor,
			}).Error("manual adjustment rejected: would drive balance negative")
		}
		return ledgerstore.Transaction{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"member_id":      memberID,
		"delta":          delta,
		"actor":          actor,
		"transaction_id": id,
	}).Info("manual adjustment recorded")

	return ledgerstore.Transaction{
		ID:        id,
		MemberID:  memberID,
		Delta:     delta,
		Reason:    ledgerstore.ReasonManualAdjustment,
		Actor:     actor,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}, nil
}
