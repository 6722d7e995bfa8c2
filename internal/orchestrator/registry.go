package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/repository"
	"github.com/and161185/access-sync/internal/service"
)

// Names of the non-platform jobs.
const (
	JobReconciliation = "reconciliation"
	JobAccessAudit    = "access_audit"
)

// perUserPlatforms have no practical bulk listing and are synced one employee at a time.
var perUserPlatforms = map[model.Platform]bool{model.PlatformSlack: true}

// SyncJobName returns the job name of a platform refresh.
func SyncJobName(p model.Platform) string {
	name := strings.ToLower(string(p))
	if perUserPlatforms[p] {
		return name + "_user_sync"
	}
	return name + "_sync"
}

// Deps wires the job registry.
type Deps struct {
	Adapters    *platform.Registry
	Employees   repository.EmployeeRepository
	Mirrors     repository.MirrorRepository
	Tx          repository.TxManager
	Audit       service.AuditService
	BatchSize   int
	BatchDelay  time.Duration
	UpsertBatch int
	Strict      bool
	Logger      *zap.Logger
}

// BuildJobs returns the fixed registry: full syncs, then per-user syncs, then
// reconciliation over the configured platforms, then the audit companion.
func BuildJobs(d Deps) []Job {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var (
		full, perUser []Job
		strategies    []service.Strategy
	)
	for _, a := range d.Adapters.Ordered() {
		p := a.Platform()
		strategies = append(strategies, service.MirrorStrategy(p))
		if perUserPlatforms[p] {
			us := service.NewUserSync(a, d.Employees, d.Mirrors, d.BatchSize, d.BatchDelay, log)
			perUser = append(perUser, Job{Name: SyncJobName(p), Run: func(ctx context.Context, progress service.ProgressFunc) (any, error) {
				return us.Run(ctx, progress)
			}})
			continue
		}
		fs := service.NewFullSync(a, d.Mirrors, d.UpsertBatch, log)
		full = append(full, Job{Name: SyncJobName(p), Run: func(ctx context.Context, progress service.ProgressFunc) (any, error) {
			return fs.Run(ctx, progress)
		}})
	}

	jobs := append(full, perUser...)
	rec := service.NewReconciler(d.Tx, strategies, d.Strict, log)
	jobs = append(jobs, Job{Name: JobReconciliation, Run: func(ctx context.Context, progress service.ProgressFunc) (any, error) {
		return rec.Run(ctx, progress)
	}})
	if d.Audit != nil {
		audit := d.Audit
		jobs = append(jobs, Job{Name: JobAccessAudit, Run: func(ctx context.Context, progress service.ProgressFunc) (any, error) {
			return audit.Summarize(ctx, progress)
		}})
	}
	return jobs
}
