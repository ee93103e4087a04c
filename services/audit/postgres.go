package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"autoheal/pkg/db"
	"autoheal/services/healer"
)

// PostgresStore appends audit entries to the healing_audit table.
type PostgresStore struct {
	q    db.Querier
	meta map[string]any
}

// NewPostgresStore writes through q. meta is stored alongside every entry and
// may be nil.
func NewPostgresStore(q db.Querier, meta map[string]any) (*PostgresStore, error) {
	if q == nil {
		return nil, errors.New("querier is required")
	}
	return &PostgresStore{q: q, meta: meta}, nil
}

// Append inserts entry.
func (s *PostgresStore) Append(ctx context.Context, entry healer.AuditEntry) error {
	meta := s.meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	at := entry.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err = db.Exec(ctx, s.q, `
INSERT INTO healing_audit (invocation_id, instance_id, action, status, details, meta, at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
`, entry.InvocationID, entry.InstanceID, entry.Action, entry.Status, entry.Details, string(metaBytes), at)
	return err
}

type auditRow struct {
	InvocationID uuid.UUID `db:"invocation_id"`
	InstanceID   string    `db:"instance_id"`
	Action       string    `db:"action"`
	Status       string    `db:"status"`
	Details      *string   `db:"details"`
	At           time.Time `db:"at"`
}

// Recent returns the latest entries for instanceID, newest first.
func (s *PostgresStore) Recent(ctx context.Context, instanceID string, limit int) ([]healer.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []auditRow
	err := db.Select(ctx, s.q, &rows, `
SELECT invocation_id, instance_id, action, status, details, at
FROM healing_audit
WHERE instance_id = $1
ORDER BY at DESC, id DESC
LIMIT $2
`, instanceID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]healer.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := healer.AuditEntry{
			InvocationID: r.InvocationID,
			Timestamp:    r.At.UTC(),
			InstanceID:   r.InstanceID,
			Action:       r.Action,
			Status:       r.Status,
		}
		if r.Details != nil {
			e.Details = *r.Details
		}
		entries = append(entries, e)
	}
	return entries, nil
}
