package ledgerstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNegativeBalance = errors.New("transaction would drive balance negative")
	ErrLockNotFound    = errors.New("interaction lock not found")
	ErrDuplicateID     = errors.New("duplicate transaction id")
)

// Reasons for a ledger transaction.
const (
	ReasonSubmissionDebit   = "submission-debit"
	ReasonInteractionCredit = "interaction-credit"
	ReasonManualAdjustment  = "manual-adjustment"
)

// Interaction types tracked by the lock index.
const (
	InteractionLike    = "like"
	InteractionReshare = "reshare"
	InteractionReply   = "reply"
)

// Interactions lists every known interaction type.
var Interactions = []string{InteractionLike, InteractionReshare, InteractionReply}

// Entry is the input for appending a transaction.
type Entry struct {
	MemberID string
	Delta    int64
	Reason   string
	PostID   string
	Actor    string
	Note     string
}

// Transaction is an immutable, signed point movement recorded against a member.
type Transaction struct {
	ID        uuid.UUID `json:"id" db:"id"`
	MemberID  string    `json:"member_id" db:"member_id"`
	Delta     int64     `json:"delta" db:"delta"`
	Reason    string    `json:"reason" db:"reason"`
	PostID    string    `json:"post_id,omitempty" db:"post_id"`
	Actor     string    `json:"actor" db:"actor"`
	Note      string    `json:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Store provides the append-only points ledger and the interaction lock
// index. Both require atomicity at the storage layer: a lost update here is
// a silent double-payment or silent point loss.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
}

// New creates a ledger store backed by the given database.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		tracer: otel.Tracer("engagepulse/ledgerstore"),
	}
}

// Append atomically records a transaction and advances the balance
// projection. A debit that would drive the balance below zero is rolled back
// and rejected with ErrNegativeBalance; the caller is expected to have
// checked the balance first, so hitting this is an integrity fault upstream.
func (s *Store) Append(ctx context.Context, e Entry) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := s.AppendIn(ctx, tx, e)
	if err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// AppendIn records a transaction inside a caller-owned database transaction,
// so a debit can commit atomically with the state that justified it (daily
// counter, submission row). The same negative-balance fail-safe applies; the
// caller must roll back on error.
func (s *Store) AppendIn(ctx context.Context, tx *sql.Tx, e Entry) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "ledgerstore.append",
		trace.WithAttributes(
			attribute.String("member.id", e.MemberID),
			attribute.Int64("delta", e.Delta),
			attribute.String("reason", e.Reason),
		),
	)
	defer span.End()

	id := uuid.New()
	var postID, note any
	if e.PostID != "" {
		postID = e.PostID
	}
	if e.Note != "" {
		note = e.Note
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_transactions (id, member_id, delta, reason, post_id, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, e.MemberID, e.Delta, e.Reason, postID, e.Actor, note, time.Now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return uuid.Nil, ErrDuplicateID
		}
		return uuid.Nil, fmt.Errorf("insert transaction: %w", err)
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO balances (member_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (member_id) DO UPDATE
		SET balance = balances.balance + EXCLUDED.balance,
		    updated_at = NOW()
		RETURNING balance
	`, e.MemberID, e.Delta).Scan(&balance)
	if err != nil {
		return uuid.Nil, fmt.Errorf("advance balance projection: %w", err)
	}

	if balance < 0 && e.Delta < 0 {
		span.SetAttributes(attribute.Bool("rejected.negative_balance", true))
		return uuid.Nil, ErrNegativeBalance
	}

	span.SetAttributes(attribute.Int64("balance.after", balance))
	return id, nil
}

// Balance returns the member's current balance from the projection.
// A member with no transactions has balance zero.
func (s *Store) Balance(ctx context.Context, memberID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "ledgerstore.balance",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer span.End()

	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM balances WHERE member_id = $1
	`, memberID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

// RecomputeBalance derives the balance directly from the transaction log.
// Used by the audit runner to verify the projection.
func (s *Store) RecomputeBalance(ctx context.Context, memberID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "ledgerstore.recompute_balance",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer span.End()

	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM ledger_transactions WHERE member_id = $1
	`, memberID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("recompute balance: %w", err)
	}
	return balance, nil
}

// TryLock attempts to claim the dedup key (postID, interaction, actorID).
// Returns true when this call created the lock; false when it already
// existed. Concurrent callers racing on the same key have exactly one
// winner, enforced by the primary key.
func (s *Store) TryLock(ctx context.Context, postID, interaction, actorID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ledgerstore.try_lock",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.String("interaction", interaction),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO interaction_locks (post_id, interaction, actor_id, observed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id, interaction, actor_id) DO NOTHING
	`, postID, interaction, actorID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert interaction lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	span.SetAttributes(attribute.Bool("lock.acquired", n == 1))
	return n == 1, nil
}

// ResetLock removes a dedup record, intentionally re-enabling payment for
// that interaction. Administrative escape hatch, not a normal operation.
func (s *Store) ResetLock(ctx context.Context, postID, interaction, actorID string) error {
	ctx, span := s.tracer.Start(ctx, "ledgerstore.reset_lock",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.String("interaction", interaction),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM interaction_locks
		WHERE post_id = $1 AND interaction = $2 AND actor_id = $3
	`, postID, interaction, actorID)
	if err != nil {
		return fmt.Errorf("delete interaction lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrLockNotFound
	}
	return nil
}

// Members returns every member id that appears in the transaction log.
func (s *Store) Members(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT member_id FROM ledger_transactions
	`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}
