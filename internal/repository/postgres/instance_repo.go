package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/access-sync/internal/errs"
)

// InstanceRepo implements AppInstanceRepository using PostgreSQL.
type InstanceRepo struct{ q querier }

// NewInstanceRepo constructs an app instance repository.
func NewInstanceRepo(db *DB) *InstanceRepo { return &InstanceRepo{q: db.Pool} }

// PrimaryID returns the primary instance ID for an app key.
func (r *InstanceRepo) PrimaryID(ctx context.Context, appKey string) (uuid.UUID, error) {
	const q = `SELECT id FROM app_instances WHERE app_key=$1 AND is_primary LIMIT 1`
	var id uuid.UUID
	if err := r.q.QueryRow(ctx, q, appKey).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, errs.ErrNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}
