package postgres

import (
	"context"

	"github.com/and161185/access-sync/internal/model"
)

// AuditRepo implements AuditRepository using PostgreSQL.
type AuditRepo struct{ q querier }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{q: db.Pool} }

// Append inserts one audit entry; id and created_at come from column defaults.
func (r *AuditRepo) Append(ctx context.Context, e model.AuditEntry) error {
	const q = `INSERT INTO audit_log (actor, action, target, details) VALUES ($1, $2, $3, $4)`
	var details []byte
	if len(e.Details) > 0 {
		details = e.Details
	}
	_, err := r.q.Exec(ctx, q, e.Actor, e.Action, e.Target, details)
	return err
}
