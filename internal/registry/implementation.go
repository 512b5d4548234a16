// internal/registry/implementation.go
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"engagepulse/internal/tierconfig"
)

// service implements the Service interface on Postgres.
type service struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewService creates a new connection registry instance.
func NewService(db *sql.DB, logger *logrus.Entry) Service {
	return &service{db: db, logger: logger}
}

// Link writes the forward record and the reverse handle index in one
// transaction; a reader never observes one updated without the other. If
// either write fails the whole operation fails and can be retried whole.
func (s *service) Link(ctx context.Context, chatID, handle, tier string) (*Connection, error) {
	h, err := ValidateHandle(handle)
	if err != nil {
		return nil, err
	}
	if tier == "" {
		tier = tierconfig.DefaultTier
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The handle must not belong to a different member.
	var owner string
	err = tx.QueryRowContext(ctx, `
		SELECT chat_id FROM handle_index WHERE handle = $1
	`, h).Scan(&owner)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query handle index: %w", err)
	}
	if err == nil && owner != chatID {
		return nil, ErrHandleTaken
	}

	// On re-link with a new handle, the stale reverse entry goes away in
	// the same transaction.
	var prevHandle string
	err = tx.QueryRowContext(ctx, `
		SELECT handle FROM connections WHERE chat_id = $1 FOR UPDATE
	`, chatID).Scan(&prevHandle)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query connection: %w", err)
	}
	if prevHandle != "" && prevHandle != h {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM handle_index WHERE handle = $1 AND chat_id = $2
		`, prevHandle, chatID); err != nil {
			return nil, fmt.Errorf("remove stale handle index: %w", err)
		}
	}

	conn := &Connection{ChatID: chatID, Handle: h, Tier: tier}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO connections (chat_id, handle, tier, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (chat_id) DO UPDATE
		SET handle = EXCLUDED.handle,
		    tier = EXCLUDED.tier,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`, chatID, h, tier).Scan(&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert connection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO handle_index (handle, chat_id)
		VALUES ($1, $2)
		ON CONFLICT (handle) DO UPDATE SET chat_id = EXCLUDED.chat_id
	`, h, chatID); err != nil {
		return nil, fmt.Errorf("upsert handle index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"handle":  h,
		"tier":    tier,
	}).Info("member linked")
	return conn, nil
}

// Get returns the connection for a chat id.
func (s *service) Get(ctx context.Context, chatID string) (*Connection, error) {
	conn := &Connection{}
	err := s.db.QueryRowContext(ctx, `
		SELECT chat_id, handle, tier, created_at, updated_at
		FROM connections
		WHERE chat_id = $1
	`, chatID).Scan(&conn.ChatID, &conn.Handle, &conn.Tier, &conn.CreatedAt, &conn.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("query connection: %w", err)
	}
	return conn, nil
}

// ResolveHandle returns the chat id linked to a handle.
func (s *service) ResolveHandle(ctx context.Context, handle string) (string, error) {
	var chatID string
	err := s.db.QueryRowContext(ctx, `
		SELECT chat_id FROM handle_index WHERE handle = $1
	`, NormalizeHandle(handle)).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrHandleUnknown
	}
	if err != nil {
		return "", fmt.Errorf("query handle index: %w", err)
	}
	return chatID, nil
}

// SetTier changes a member's tier, keeping the same handle binding.
func (s *service) SetTier(ctx context.Context, chatID, tier string) (*Connection, error) {
	conn := &Connection{ChatID: chatID, Tier: tier}
	err := s.db.QueryRowContext(ctx, `
		UPDATE connections
		SET tier = $2, updated_at = NOW()
		WHERE chat_id = $1
		RETURNING handle, created_at, updated_at
	`, chatID, tier).Scan(&conn.Handle, &conn.CreatedAt, &conn.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("update tier: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"tier":    tier,
	}).Info("member tier changed")
	return conn, nil
}

// Purge removes both indexes in one transaction.
func (s *service) Purge(ctx context.Context, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var handle string
	err = tx.QueryRowContext(ctx, `
		SELECT handle FROM connections WHERE chat_id = $1 FOR UPDATE
	`, chatID).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotLinked
	}
	if err != nil {
		return fmt.Errorf("query connection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM handle_index WHERE handle = $1`, handle); err != nil {
		return fmt.Errorf("delete handle index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"handle":  handle,
		"at":      time.Now().UTC(),
	}).Warn("member connection purged")
	return nil
}
