package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrAlreadyConsumed mirrors authtoken.ErrTokenAlreadyUsed for callers that
// only depend on pkg/storage (keeps this package free of a pkg/authtoken
// import cycle; pkg/coordinator maps between the two sentinel errors).
var ErrAlreadyConsumed = errors.New("storage: token already consumed")

// ConsumptionRegistry is the durable counterpart to authtoken.Issuer's
// in-process map: a CheckAndRecord call must be a single atomic
// compare-and-swap against the consumed_tokens table so two processes (or
// two goroutines against the same Client) can never both succeed for one
// token ID.
type ConsumptionRegistry struct {
	db *sql.DB
}

// NewConsumptionRegistry wraps an already-migrated Client's pool.
func NewConsumptionRegistry(c *Client) *ConsumptionRegistry {
	return &ConsumptionRegistry{db: c.db}
}

// CheckAndRecord atomically inserts (tokenID, contentHash) if absent. The
// INSERT ... ON CONFLICT DO NOTHING plus RowsAffected check is the
// database-level equivalent of authtoken.Issuer's mutex-guarded map: the
// database itself serializes concurrent attempts.
func (r *ConsumptionRegistry) CheckAndRecord(ctx context.Context, tokenID, contentHash string) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO consumed_tokens (token_id, content_hash) VALUES ($1, $2) ON CONFLICT (token_id) DO NOTHING`,
		tokenID, contentHash)
	if err != nil {
		return fmt.Errorf("storage: record consumption: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyConsumed
	}
	return nil
}

// IsConsumed reports whether tokenID has already been recorded. Diagnostic
// only — CheckAndRecord is the sole authoritative path.
func (r *ConsumptionRegistry) IsConsumed(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM consumed_tokens WHERE token_id = $1)`, tokenID).Scan(&exists)
	return exists, err
}

// ScopeStore persists one immutable scope activation per session.
type ScopeStore struct {
	db *sql.DB
}

// NewScopeStore wraps an already-migrated Client's pool.
func NewScopeStore(c *Client) *ScopeStore {
	return &ScopeStore{db: c.db}
}

// ErrScopeAlreadyStored mirrors scope.ErrScopeAlreadyActive for the
// durable path.
var ErrScopeAlreadyStored = errors.New("storage: scope already recorded for session")

// Activate atomically inserts a session's scope if none exists yet.
func (s *ScopeStore) Activate(ctx context.Context, sessionID, scopeHash, targetsCSV string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scope_activations (session_id, scope_hash, targets) VALUES ($1, $2, $3) ON CONFLICT (session_id) DO NOTHING`,
		sessionID, scopeHash, targetsCSV)
	if err != nil {
		return fmt.Errorf("storage: activate scope: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrScopeAlreadyStored
	}
	return nil
}
