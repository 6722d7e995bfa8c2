// Package orchestrator runs the registered sync jobs one at a time, in order, behind a single-slot lock.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/service"
)

// RunFunc is the body of a job. A non-nil result is stored as the job's details.
type RunFunc func(ctx context.Context, progress service.ProgressFunc) (any, error)

// Job is one named step of a sync run.
type Job struct {
	Name string
	Run  RunFunc
}

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, actor, action, target string, details any) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers a callback invoked after every run with its outcome.
func WithObserver(fn func(err error)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// WithRecorder audits accepted triggers.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// Orchestrator owns the lock, the task queue and the job registry.
type Orchestrator struct {
	jobs     []Job
	index    map[string]int
	tracker  service.JobTracker
	lock     chan struct{}
	queue    chan []string
	log      *zap.Logger
	observe  func(err error)
	recorder Recorder
}

// New constructs an Orchestrator; job order is run order.
func New(tracker service.JobTracker, log *zap.Logger, jobs []Job, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		jobs:    jobs,
		index:   make(map[string]int, len(jobs)),
		tracker: tracker,
		lock:    make(chan struct{}, 1),
		queue:   make(chan []string, 1),
		log:     log,
		observe: func(error) {},
	}
	for i, j := range jobs {
		o.index[j.Name] = i
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// JobNames returns registered job names in run order.
func (o *Orchestrator) JobNames() []string {
	out := make([]string, len(o.jobs))
	for i, j := range o.jobs {
		out[i] = j.Name
	}
	return out
}

// TryAcquire takes the run slot if it is free.
func (o *Orchestrator) TryAcquire() bool {
	select {
	case o.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the run slot.
func (o *Orchestrator) Release() {
	select {
	case <-o.lock:
	default:
	}
}

// Running reports whether a run holds the slot.
func (o *Orchestrator) Running() bool { return len(o.lock) == 1 }

// Select resolves names to registered jobs in registry order. Empty names select every job.
func (o *Orchestrator) Select(names []string) ([]Job, error) {
	if len(names) == 0 {
		return append([]Job(nil), o.jobs...), nil
	}
	want := make(map[int]bool, len(names))
	var unknown []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		i, ok := o.index[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		want[i] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%s: %w", strings.Join(unknown, ","), errs.ErrUnknownJob)
	}
	out := make([]Job, 0, len(want))
	for i, j := range o.jobs {
		if want[i] {
			out = append(out, j)
		}
	}
	return out, nil
}

// RunSelective runs the named jobs (all when empty) synchronously.
// A run already in progress makes this a silent no-op.
func (o *Orchestrator) RunSelective(ctx context.Context, names []string) error {
	jobs, err := o.Select(names)
	if err != nil {
		return err
	}
	if !o.TryAcquire() {
		o.log.Info("sync already running, skipping")
		return nil
	}
	defer o.Release()
	return o.run(ctx, jobs)
}

// Trigger validates names, takes the slot and hands the run to the worker.
// It never waits for the run itself.
func (o *Orchestrator) Trigger(names []string) error {
	if _, err := o.Select(names); err != nil {
		return err
	}
	if !o.TryAcquire() {
		return errs.ErrAlreadyRunning
	}
	o.queue <- append([]string(nil), names...)
	return nil
}

// TriggerAs is Trigger plus an audit entry naming the actor.
func (o *Orchestrator) TriggerAs(ctx context.Context, actor string, names []string) error {
	if err := o.Trigger(names); err != nil {
		return err
	}
	if o.recorder != nil {
		target := "all"
		if len(names) > 0 {
			target = strings.Join(names, ",")
		}
		if err := o.recorder.Record(ctx, actor, service.ActionSyncTrigger, target, nil); err != nil {
			o.log.Error("audit trigger", zap.Error(err))
		}
	}
	return nil
}

// Start runs the single worker until ctx is done.
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case names := <-o.queue:
				o.runQueued(ctx, names)
			}
		}
	}()
}

func (o *Orchestrator) runQueued(ctx context.Context, names []string) {
	defer o.Release()
	jobs, err := o.Select(names)
	if err != nil {
		o.log.Error("queued run rejected", zap.Error(err))
		return
	}
	_ = o.run(ctx, jobs)
}

// run executes jobs strictly in order and stops at the first failure.
func (o *Orchestrator) run(ctx context.Context, jobs []Job) error {
	o.log.Info("sync run started", zap.Int("count", len(jobs)))
	for _, j := range jobs {
		if err := o.runJob(ctx, j); err != nil {
			o.log.Error("sync run stopped", zap.String("job", j.Name), zap.Error(err))
			o.observe(err)
			return err
		}
	}
	o.log.Info("sync run finished", zap.Int("count", len(jobs)))
	o.observe(nil)
	return nil
}

func (o *Orchestrator) runJob(ctx context.Context, j Job) (err error) {
	runID, err := o.tracker.Start(ctx, j.Name)
	if err != nil {
		return err
	}
	log := o.log.With(zap.String("job", j.Name), zap.String("run_id", runID.String()))
	log.Info("job started")

	progress := func(step string, percent float64) {
		if perr := o.tracker.UpdateProgress(ctx, j.Name, step, percent); perr != nil {
			log.Warn("progress update failed", zap.Error(perr))
		}
	}

	result, err := safeRun(ctx, j.Run, progress)
	if err != nil {
		if ferr := o.tracker.Finish(ctx, j.Name, model.JobFailed, err); ferr != nil {
			log.Error("record failure", zap.Error(ferr))
		}
		log.Error("job failed", zap.Error(err))
		return err
	}

	if result != nil {
		if rerr := o.tracker.Report(ctx, j.Name, result); rerr != nil {
			log.Warn("store job details", zap.Error(rerr))
		}
	}
	if ferr := o.tracker.Finish(ctx, j.Name, model.JobSuccess, nil); ferr != nil {
		log.Error("record success", zap.Error(ferr))
	}
	log.Info("job finished")
	return nil
}

// safeRun converts panics to errors and attaches a stack to plain errors.
func safeRun(ctx context.Context, fn RunFunc, progress service.ProgressFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	result, err = fn(ctx, progress)
	if err != nil {
		var st interface{ StackTrace() errors.StackTrace }
		if !errors.As(err, &st) {
			err = errors.WithStack(err)
		}
	}
	return result, err
}
