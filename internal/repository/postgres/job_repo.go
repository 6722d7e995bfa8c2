package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/access-sync/internal/model"
)

// JobRepo implements JobRepository using PostgreSQL.
type JobRepo struct{ q querier }

// NewJobRepo constructs a sync job repository.
func NewJobRepo(db *DB) *JobRepo { return &JobRepo{q: db.Pool} }

// EnsureJobs inserts IDLE rows for names not yet present.
func (r *JobRepo) EnsureJobs(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	const q = `INSERT INTO sync_jobs (name) SELECT unnest($1::text[]) ON CONFLICT (name) DO NOTHING`
	_, err := r.q.Exec(ctx, q, names)
	return err
}

// MarkInterrupted fails all RUNNING rows.
func (r *JobRepo) MarkInterrupted(ctx context.Context, details []byte) (int64, error) {
	const q = `UPDATE sync_jobs SET status='FAILED', last_failure_at=now(), details=$1 WHERE status='RUNNING'`
	tag, err := r.q.Exec(ctx, q, details)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Start upserts a RUNNING row for a new run.
func (r *JobRepo) Start(ctx context.Context, name string, runID uuid.UUID) error {
	const q = `
INSERT INTO sync_jobs (name, status, progress, current_step, run_id, last_run_at, details)
VALUES ($1, 'RUNNING', 0, '', $2, now(), NULL)
ON CONFLICT (name) DO UPDATE SET
  status='RUNNING', progress=0, current_step='', run_id=EXCLUDED.run_id,
  last_run_at=EXCLUDED.last_run_at, details=NULL`
	_, err := r.q.Exec(ctx, q, name, runID)
	return err
}

// UpdateProgress stores progress and step.
func (r *JobRepo) UpdateProgress(ctx context.Context, name, step string, progress int) error {
	const q = `UPDATE sync_jobs SET progress=$2, current_step=$3 WHERE name=$1`
	_, err := r.q.Exec(ctx, q, name, progress, step)
	return err
}

// Finish stores the terminal status and forces progress to 100. Nil details keep the stored payload.
func (r *JobRepo) Finish(ctx context.Context, name string, status model.JobStatus, details []byte) error {
	const q = `
UPDATE sync_jobs SET
  status=$2::text, progress=100, details=COALESCE($3::jsonb, details),
  last_success_at = CASE WHEN $2::text='SUCCESS' THEN now() ELSE last_success_at END,
  last_failure_at = CASE WHEN $2::text='FAILED' THEN now() ELSE last_failure_at END
WHERE name=$1`
	_, err := r.q.Exec(ctx, q, name, string(status), details)
	return err
}

// SetDetails replaces the details payload.
func (r *JobRepo) SetDetails(ctx context.Context, name string, details []byte) error {
	const q = `UPDATE sync_jobs SET details=$2 WHERE name=$1`
	_, err := r.q.Exec(ctx, q, name, details)
	return err
}

// List returns all job rows ordered by name.
func (r *JobRepo) List(ctx context.Context) ([]model.SyncJob, error) {
	const q = `
SELECT name, status, progress, current_step, run_id, last_run_at, last_success_at, last_failure_at, details
FROM sync_jobs ORDER BY name`
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncJob
	for rows.Next() {
		var (
			j       model.SyncJob
			status  string
			runID   uuid.NullUUID
			details []byte
		)
		if err = rows.Scan(&j.Name, &status, &j.Progress, &j.CurrentStep, &runID,
			&j.LastRunAt, &j.LastSuccessAt, &j.LastFailureAt, &details); err != nil {
			return nil, err
		}
		j.Status = model.JobStatus(status)
		if runID.Valid {
			j.RunID = runID.UUID
		}
		if len(details) > 0 {
			j.Details = details
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
