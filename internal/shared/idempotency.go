package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// ErrIdempotencyConflict reports a key that was already claimed.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore claims client supplied request keys, scoped per module.
type IdempotencyStore struct {
	q   db.Querier
	now func() time.Time
}

// NewIdempotencyStore keeps keys in the idempotency_keys table.
func NewIdempotencyStore(q db.Querier) *IdempotencyStore {
	return &IdempotencyStore{q: q, now: time.Now}
}

func checkKey(key, module string) error {
	if key == "" {
		return NewValidationError("idempotency_key", "is required")
	}
	if module == "" {
		return NewValidationError("module", "is required")
	}
	return nil
}

// CheckAndInsert claims key for module, returning ErrIdempotencyConflict when it
// was claimed before. The insert never raises a constraint error, so it is safe
// inside a caller's transaction.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.q == nil {
		return errors.New("idempotency: store not configured")
	}
	if err := checkKey(key, module); err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key, module) DO NOTHING`, key, module, s.now().UTC())
	if err != nil {
		return fmt.Errorf("idempotency: claim %s/%s: %w", module, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases a claim so the request can be retried after a failure.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil || s.q == nil {
		return nil
	}
	if err := checkKey(key, module); err != nil {
		return err
	}
	if _, err := s.q.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module); err != nil {
		return fmt.Errorf("idempotency: release %s/%s: %w", module, key, err)
	}
	return nil
}

// Cleanup drops claims older than olderThan and reports how many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.q == nil {
		return 0, nil
	}
	if olderThan <= 0 {
		return 0, NewValidationError("retention", "must be positive")
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan).UTC())
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
