package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/access-sync/internal/model"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ q querier }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{q: db.Pool} }

// EnsureExists inserts absent rows as deactivated in a single statement.
func (r *AccountRepo) EnsureExists(ctx context.Context, instanceID uuid.UUID, userIDs []uuid.UUID) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	const q = `
INSERT INTO user_accounts (user_id, app_instance_id, status)
SELECT u::uuid, $1, 'deactivated' FROM unnest($2::text[]) AS u
ON CONFLICT (user_id, app_instance_id) DO NOTHING`
	tag, err := r.q.Exec(ctx, q, instanceID, uuidStrings(userIDs))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkSeen sets status and last_seen_at for users observed on the platform.
func (r *AccountRepo) MarkSeen(ctx context.Context, instanceID uuid.UUID, userIDs []uuid.UUID, status model.AccountStatus) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	const q = `
UPDATE user_accounts SET status=$3, last_seen_at=now(), updated_at=now()
WHERE app_instance_id=$1 AND user_id = ANY($2::text[]::uuid[])`
	tag, err := r.q.Exec(ctx, q, instanceID, uuidStrings(userIDs), string(status))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkDeactivated flips users to deactivated. last_seen_at keeps the last sighting.
func (r *AccountRepo) MarkDeactivated(ctx context.Context, instanceID uuid.UUID, userIDs []uuid.UUID) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	const q = `
UPDATE user_accounts SET status='deactivated', updated_at=now()
WHERE app_instance_id=$1 AND user_id = ANY($2::text[]::uuid[]) AND status <> 'deactivated'`
	tag, err := r.q.Exec(ctx, q, instanceID, uuidStrings(userIDs))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListUserIDs returns employees with a row for the instance.
func (r *AccountRepo) ListUserIDs(ctx context.Context, instanceID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT user_id FROM user_accounts WHERE app_instance_id=$1`
	rows, err := r.q.Query(ctx, q, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListByEmployee returns every account of an employee with its app key.
func (r *AccountRepo) ListByEmployee(ctx context.Context, userID uuid.UUID) ([]model.UserAccount, error) {
	const q = `
SELECT a.id, a.user_id, a.app_instance_id, i.app_key, a.status, a.last_seen_at, a.updated_at
FROM user_accounts a JOIN app_instances i ON i.id = a.app_instance_id
WHERE a.user_id=$1
ORDER BY i.app_key`
	rows, err := r.q.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserAccount
	for rows.Next() {
		var (
			a      model.UserAccount
			status string
		)
		if err = rows.Scan(&a.ID, &a.UserID, &a.AppInstanceID, &a.AppKey, &status, &a.LastSeenAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Status = model.AccountStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByStatus aggregates accounts by app key and status.
func (r *AccountRepo) CountByStatus(ctx context.Context) ([]model.StatusCount, error) {
	const q = `
SELECT i.app_key, a.status, count(*)
FROM user_accounts a JOIN app_instances i ON i.id = a.app_instance_id
GROUP BY i.app_key, a.status
ORDER BY i.app_key, a.status`
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatusCount
	for rows.Next() {
		var (
			c      model.StatusCount
			status string
			n      int64
		)
		if err = rows.Scan(&c.AppKey, &status, &n); err != nil {
			return nil, err
		}
		c.Status = model.AccountStatus(status)
		c.Count = int(n)
		out = append(out, c)
	}
	return out, rows.Err()
}
