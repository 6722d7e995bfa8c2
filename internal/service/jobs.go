package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"sort"

	"github.com/gofrs/uuid/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/repository"
)

// ProgressFunc reports the current step and completion percent of a running job.
type ProgressFunc func(step string, percent float64)

// InterruptedMessage is stored on jobs left RUNNING by a previous process.
const InterruptedMessage = "interrupted by restart"

// JobTracker persists the lifecycle of named sync jobs.
type JobTracker interface {
	// Register creates IDLE rows for names and fails rows left RUNNING by a dead process.
	Register(ctx context.Context, names []string) error
	// Start sets RUNNING, resets progress, clears details and returns a fresh run ID.
	Start(ctx context.Context, name string) (uuid.UUID, error)
	// UpdateProgress clamps percent to [0,100], rounds it and overwrites the current step.
	UpdateProgress(ctx context.Context, name, step string, percent float64) error
	// Report stores a structured result payload for a job.
	Report(ctx context.Context, name string, details any) error
	// Finish stores the terminal outcome and forces progress to 100.
	// On FAILED, cause is stored as {error, stack}.
	Finish(ctx context.Context, name string, outcome model.JobStatus, cause error) error
	// All returns every job in registration order.
	All(ctx context.Context) ([]model.SyncJob, error)
}

type JobTrackerImpl struct {
	repo  repository.JobRepository
	log   *zap.Logger
	order map[string]int
}

// NewJobTracker constructs a JobTracker.
func NewJobTracker(repo repository.JobRepository, log *zap.Logger) *JobTrackerImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobTrackerImpl{repo: repo, log: log, order: map[string]int{}}
}

// Register remembers the display order and prepares rows.
func (t *JobTrackerImpl) Register(ctx context.Context, names []string) error {
	for i, n := range names {
		t.order[n] = i
	}
	if err := t.repo.EnsureJobs(ctx, names); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	details, err := json.Marshal(model.FailureDetails{Error: InterruptedMessage})
	if err != nil {
		return err
	}
	n, err := t.repo.MarkInterrupted(ctx, details)
	if err != nil {
		return fmt.Errorf("reset stale jobs: %w", err)
	}
	if n > 0 {
		t.log.Warn("stale running jobs marked failed", zap.Int64("count", n))
	}
	return nil
}

func (t *JobTrackerImpl) Start(ctx context.Context, name string) (uuid.UUID, error) {
	runID, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	if err := t.repo.Start(ctx, name, runID); err != nil {
		return uuid.Nil, fmt.Errorf("start %s: %w", name, err)
	}
	return runID, nil
}

func (t *JobTrackerImpl) UpdateProgress(ctx context.Context, name, step string, percent float64) error {
	return t.repo.UpdateProgress(ctx, name, step, ClampProgress(percent))
}

func (t *JobTrackerImpl) Report(ctx context.Context, name string, details any) error {
	b, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode %s details: %w", name, err)
	}
	return t.repo.SetDetails(ctx, name, b)
}

func (t *JobTrackerImpl) Finish(ctx context.Context, name string, outcome model.JobStatus, cause error) error {
	var details []byte
	switch outcome {
	case model.JobSuccess:
	case model.JobFailed:
		if cause == nil {
			cause = stderrors.New("unknown failure")
		}
		b, err := json.Marshal(FailureDetails(cause))
		if err != nil {
			return err
		}
		details = b
	default:
		return fmt.Errorf("finish %s with %q: %w", name, outcome, errs.ErrInvalidInput)
	}
	return t.repo.Finish(ctx, name, outcome, details)
}

func (t *JobTrackerImpl) All(ctx context.Context) ([]model.SyncJob, error) {
	jobs, err := t.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		oi, iok := t.order[jobs[i].Name]
		oj, jok := t.order[jobs[j].Name]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return jobs[i].Name < jobs[j].Name
		}
	})
	return jobs, nil
}

// ClampProgress rounds percent and bounds it to [0,100].
func ClampProgress(percent float64) int {
	if math.IsNaN(percent) {
		return 0
	}
	p := math.Round(percent)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return int(p)
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// FailureDetails renders err together with its recorded stack, if any.
func FailureDetails(err error) model.FailureDetails {
	d := model.FailureDetails{Error: err.Error()}
	var st stackTracer
	if stderrors.As(err, &st) {
		d.Stack = fmt.Sprintf("%+v", st.StackTrace())
	}
	return d
}
