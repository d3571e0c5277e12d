package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// AuditLog is one row of the audit trail. ActorID zero means the system acted.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) validate() error {
	switch {
	case l.Action == "":
		return NewValidationError("action", "is required")
	case l.Entity == "":
		return NewValidationError("entity", "is required")
	case l.EntityID == "":
		return NewValidationError("entity_id", "is required")
	}
	return nil
}

// AuditLogger appends to audit_logs.
type AuditLogger struct {
	q   db.Querier
	now func() time.Time
}

// NewAuditLogger writes through q, which may be a pool or a transaction.
func NewAuditLogger(q db.Querier) *AuditLogger {
	return &AuditLogger{q: q, now: time.Now}
}

// Record appends entry. A missing timestamp is stamped with the current time.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.q == nil {
		return errors.New("audit: logger not configured")
	}
	if err := entry.validate(); err != nil {
		return err
	}
	if entry.Meta == nil {
		entry.Meta = map[string]any{}
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	at := entry.At
	if at.IsZero() {
		at = l.now()
	}
	var actor *int64
	if entry.ActorID != 0 {
		actor = &entry.ActorID
	}
	if _, err := l.q.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`, actor, entry.Action, entry.Entity, entry.EntityID, meta, at.UTC()); err != nil {
		return fmt.Errorf("audit: insert %s: %w", entry.Action, err)
	}
	return nil
}
