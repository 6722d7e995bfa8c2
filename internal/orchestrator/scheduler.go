package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/service"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...any) { l.s.Debugw(msg, keysAndValues...) }
func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Triggerer starts a background run on behalf of an actor.
type Triggerer interface {
	TriggerAs(ctx context.Context, actor string, names []string) error
}

// Scheduler triggers full runs on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler registers a full-run trigger for spec (standard five-field cron syntax).
func NewScheduler(ctx context.Context, spec string, t Triggerer, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{s: log.Sugar()}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(spec, func() {
		err := t.TriggerAs(ctx, service.SystemActor, nil)
		switch {
		case errors.Is(err, errs.ErrAlreadyRunning):
			log.Info("scheduled sync skipped: already running")
		case err != nil:
			log.Error("scheduled sync", zap.Error(err))
		default:
			log.Info("scheduled sync triggered")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new firings and returns a context done when running ones finish.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Next reports the next firing time, for logging.
func (s *Scheduler) Next() string {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return ""
	}
	return entries[0].Next.String()
}
