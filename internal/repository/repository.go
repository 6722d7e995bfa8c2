// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/access-sync/internal/model"
	"github.com/gofrs/uuid/v5"
)

// EmployeeRepository provides read-only access to employees.
type EmployeeRepository interface {
	// EmailIndex returns normalized email -> employee ID for every employee.
	EmailIndex(ctx context.Context) (map[string]uuid.UUID, error)
	// ListActive returns employees that still have access on the given day.
	ListActive(ctx context.Context, asOf time.Time) ([]model.Employee, error)
}

// AppInstanceRepository resolves configured app instances.
type AppInstanceRepository interface {
	// PrimaryID returns the primary instance for an app key or errs.ErrNotFound.
	PrimaryID(ctx context.Context, appKey string) (uuid.UUID, error)
}

// MirrorRepository reads and writes the per-platform raw mirror tables.
type MirrorRepository interface {
	// Upsert inserts new rows and refreshes existing ones keyed by native ID, clearing any absence mark.
	Upsert(ctx context.Context, p model.Platform, users []model.MirrorUser) (int64, error)
	// MarkAbsentExcept marks every present row whose native ID is not in keep as absent.
	MarkAbsentExcept(ctx context.Context, p model.Platform, keep []string) (int64, error)
	// MarkAbsentByEmail marks present rows matching the given emails, case-insensitively, as absent.
	MarkAbsentByEmail(ctx context.Context, p model.Platform, emails []string) (int64, error)
	// List returns the present rows of a platform mirror.
	List(ctx context.Context, p model.Platform) ([]model.MirrorUser, error)
}

// AccountRepository maintains unified user_accounts rows.
type AccountRepository interface {
	// EnsureExists inserts missing (user, instance) rows as deactivated; existing rows are untouched.
	EnsureExists(ctx context.Context, instanceID uuid.UUID, userIDs []uuid.UUID) (int64, error)
	// MarkSeen sets status and refreshes last_seen_at for the given users.
	MarkSeen(ctx context.Context, instanceID uuid.UUID, userIDs []uuid.UUID, status model.AccountStatus) (int64, error)
	// MarkDeactivated deactivates the given users without touching last_seen_at.
	MarkDeactivated(ctx context.Context, instanceID uuid.UUID, userIDs []uuid.UUID) (int64, error)
	// ListUserIDs returns every employee that has a row for the instance.
	ListUserIDs(ctx context.Context, instanceID uuid.UUID) ([]uuid.UUID, error)
	// ListByEmployee returns all accounts of one employee.
	ListByEmployee(ctx context.Context, userID uuid.UUID) ([]model.UserAccount, error)
	// CountByStatus aggregates accounts per app key and status.
	CountByStatus(ctx context.Context) ([]model.StatusCount, error)
}

// JobRepository persists sync job status rows.
type JobRepository interface {
	// EnsureJobs creates IDLE rows for jobs that have none.
	EnsureJobs(ctx context.Context, names []string) error
	// MarkInterrupted fails every RUNNING row (left over by a dead process).
	MarkInterrupted(ctx context.Context, details []byte) (int64, error)
	// Start moves a job to RUNNING with zero progress and cleared details.
	Start(ctx context.Context, name string, runID uuid.UUID) error
	// UpdateProgress overwrites progress and current step.
	UpdateProgress(ctx context.Context, name, step string, progress int) error
	// Finish stores a terminal status, forces progress to 100 and stamps the outcome time.
	Finish(ctx context.Context, name string, status model.JobStatus, details []byte) error
	// SetDetails replaces the details payload.
	SetDetails(ctx context.Context, name string, details []byte) error
	// List returns every job row.
	List(ctx context.Context) ([]model.SyncJob, error)
}

// AuditRepository appends to the administrative audit trail.
type AuditRepository interface {
	// Append stores one audit entry.
	Append(ctx context.Context, e model.AuditEntry) error
}

// Repos bundles repositories bound to one transaction.
type Repos struct {
	Employees EmployeeRepository
	Instances AppInstanceRepository
	Mirrors   MirrorRepository
	Accounts  AccountRepository
}

// TxManager runs a function inside a single database transaction.
type TxManager interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
