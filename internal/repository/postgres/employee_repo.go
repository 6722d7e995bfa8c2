package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/access-sync/internal/identity"
	"github.com/and161185/access-sync/internal/model"
)

// EmployeeRepo implements EmployeeRepository using PostgreSQL.
type EmployeeRepo struct{ q querier }

// NewEmployeeRepo constructs an employee repository.
func NewEmployeeRepo(db *DB) *EmployeeRepo { return &EmployeeRepo{q: db.Pool} }

// EmailIndex loads every employee email once, keyed by its normalized form.
// The oldest employee wins when two addresses normalize to the same key.
func (r *EmployeeRepo) EmailIndex(ctx context.Context) (map[string]uuid.UUID, error) {
	const q = `SELECT id, email FROM employees ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var (
			id    uuid.UUID
			email string
		)
		if err = rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		key := identity.NormalizeEmail(email)
		if key == "" {
			continue
		}
		if _, dup := out[key]; !dup {
			out[key] = id
		}
	}
	return out, rows.Err()
}

// ListActive returns active employees whose cutoff date has not passed.
func (r *EmployeeRepo) ListActive(ctx context.Context, asOf time.Time) ([]model.Employee, error) {
	const q = `
SELECT id, email, full_name, is_active, access_cutoff_date
FROM employees
WHERE is_active AND (access_cutoff_date IS NULL OR access_cutoff_date >= $1::date)
ORDER BY email`
	rows, err := r.q.Query(ctx, q, asOf.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Employee
	for rows.Next() {
		var e model.Employee
		if err = rows.Scan(&e.ID, &e.Email, &e.FullName, &e.IsActive, &e.AccessCutoffDate); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
