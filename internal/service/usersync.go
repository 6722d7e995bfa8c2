package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/platform/httpx"
	"github.com/and161185/access-sync/internal/repository"
)

// UserSync refreshes a mirror one employee at a time, for platforms without a usable bulk listing.
type UserSync struct {
	adapter   platform.Adapter
	employees repository.EmployeeRepository
	mirrors   repository.MirrorRepository
	batchSize int
	delay     time.Duration
	log       *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewUserSync constructs a UserSync with the given batch size and inter-batch delay.
func NewUserSync(
	adapter platform.Adapter,
	employees repository.EmployeeRepository,
	mirrors repository.MirrorRepository,
	batchSize int,
	delay time.Duration,
	log *zap.Logger,
) *UserSync {
	if batchSize <= 0 {
		batchSize = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UserSync{
		adapter:   adapter,
		employees: employees,
		mirrors:   mirrors,
		batchSize: batchSize,
		delay:     delay,
		log:       log.With(zap.String("platform", string(adapter.Platform()))),
		now:       time.Now,
		sleep:     httpx.SleepContext,
	}
}

type lookupOutcome struct {
	email string
	res   model.StatusResult
}

// Run looks up every active employee. Lookups inside a batch run concurrently and
// settle independently; batches run one after another with a pause in between.
func (s *UserSync) Run(ctx context.Context, progress ProgressFunc) (SyncReport, error) {
	p := s.adapter.Platform()
	rep := SyncReport{Platform: p}

	progress("loading employees", 0)
	emps, err := s.employees.ListActive(ctx, s.now())
	if err != nil {
		return rep, fmt.Errorf("%s: list employees: %w", p, err)
	}
	total := len(emps)

	for start := 0; start < total; start += s.batchSize {
		if start > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return rep, err
			}
		}
		end := min(start+s.batchSize, total)
		outcomes := s.lookupBatch(ctx, emps[start:end])

		var found []model.MirrorUser
		var gone []string
		for _, o := range outcomes {
			switch o.res.Status {
			case model.StatusActive, model.StatusSuspended:
				if o.res.User != nil {
					found = append(found, *o.res.User)
				}
			case model.StatusNotFound:
				rep.NotFound++
				gone = append(gone, o.email)
			default:
				rep.Failed++
				s.log.Warn("user lookup failed", zap.String("email", o.email), zap.String("details", o.res.Details))
			}
		}
		rep.Listed += len(found)

		n, err := s.mirrors.Upsert(ctx, p, found)
		if err != nil {
			return rep, fmt.Errorf("%s: upsert mirror: %w", p, err)
		}
		rep.Upserted += n

		// Failed lookups leave the previous row alone.
		n, err = s.mirrors.MarkAbsentByEmail(ctx, p, gone)
		if err != nil {
			return rep, fmt.Errorf("%s: retract missing users: %w", p, err)
		}
		rep.Retracted += n
		progress(fmt.Sprintf("checked %d/%d employees", end, total), 100*float64(end)/float64(total))
	}

	s.log.Info("per-user sync finished",
		zap.Int("count", total), zap.Int("found", rep.Listed),
		zap.Int("not_found", rep.NotFound), zap.Int64("retracted", rep.Retracted), zap.Int("failed", rep.Failed))
	return rep, nil
}

func (s *UserSync) lookupBatch(ctx context.Context, batch []model.Employee) []lookupOutcome {
	out := make([]lookupOutcome, len(batch))
	var wg sync.WaitGroup
	for i, e := range batch {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					out[i] = lookupOutcome{email: email, res: model.StatusResult{
						Platform: s.adapter.Platform(), Status: model.StatusError, Details: fmt.Sprint("panic: ", r),
					}}
				}
			}()
			out[i] = lookupOutcome{email: email, res: s.adapter.GetStatus(ctx, email)}
		}(i, e.Email)
	}
	wg.Wait()
	return out
}
