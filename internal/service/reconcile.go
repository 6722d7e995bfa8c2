package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/identity"
	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/repository"
)

// Strategy tells the reconciler how to read one platform's mirror and judge suspension.
type Strategy struct {
	Platform    model.Platform
	FetchRaw    func(ctx context.Context, mirrors repository.MirrorRepository) ([]model.MirrorUser, error)
	IsSuspended func(u model.MirrorUser) bool
}

// MirrorStrategy reads the platform's mirror table and applies its suspension predicate.
func MirrorStrategy(p model.Platform) Strategy {
	return Strategy{
		Platform: p,
		FetchRaw: func(ctx context.Context, mirrors repository.MirrorRepository) ([]model.MirrorUser, error) {
			return mirrors.List(ctx, p)
		},
		IsSuspended: func(u model.MirrorUser) bool { return platform.IsSuspended(p, u.Status) },
	}
}

// Classification splits the employees observed on a platform.
type Classification struct {
	ToActivate []uuid.UUID
	ToSuspend  []uuid.UUID
	// Ignored counts records whose email matches no employee.
	Ignored int
}

// Seen returns every classified employee.
func (c Classification) Seen() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(c.ToActivate)+len(c.ToSuspend))
	out = append(out, c.ToActivate...)
	return append(out, c.ToSuspend...)
}

// Classify maps raw records to employees by normalized email. An employee with
// several records is suspended if any of them is.
func Classify(raw []model.MirrorUser, emails map[string]uuid.UUID, isSuspended func(model.MirrorUser) bool) Classification {
	var (
		c         Classification
		order     []uuid.UUID
		suspended = make(map[uuid.UUID]bool)
	)
	for _, u := range raw {
		id, ok := emails[identity.NormalizeEmail(u.Email)]
		if !ok {
			c.Ignored++
			continue
		}
		prev, seen := suspended[id]
		if !seen {
			order = append(order, id)
		}
		suspended[id] = prev || isSuspended(u)
	}
	for _, id := range order {
		if suspended[id] {
			c.ToSuspend = append(c.ToSuspend, id)
		} else {
			c.ToActivate = append(c.ToActivate, id)
		}
	}
	return c
}

// Missing returns IDs in existing that are not in seen.
func Missing(existing, seen []uuid.UUID) []uuid.UUID {
	observed := make(map[uuid.UUID]struct{}, len(seen))
	for _, id := range seen {
		observed[id] = struct{}{}
	}
	var out []uuid.UUID
	for _, id := range existing {
		if _, ok := observed[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// PlatformReconcile holds the counts of one platform pass.
type PlatformReconcile struct {
	Platform    model.Platform `json:"platform"`
	Created     int64          `json:"created"`
	Activated   int            `json:"activated"`
	Suspended   int            `json:"suspended"`
	Deactivated int64          `json:"deactivated"`
	Ignored     int            `json:"ignored"`
}

// SkippedPlatform records a platform left out of a pass.
type SkippedPlatform struct {
	Platform model.Platform `json:"platform"`
	Reason   string         `json:"reason"`
}

// ReconcileReport is stored as the reconciliation job's details.
type ReconcileReport struct {
	Platforms []PlatformReconcile `json:"platforms"`
	Skipped   []SkippedPlatform   `json:"skipped,omitempty"`
}

// Reconciler derives user_accounts from the mirrors of every platform in one transaction.
type Reconciler struct {
	tx         repository.TxManager
	strategies []Strategy
	strict     bool
	log        *zap.Logger
}

// NewReconciler constructs a Reconciler. With strict set, a platform without a primary
// instance fails the pass instead of being skipped.
func NewReconciler(tx repository.TxManager, strategies []Strategy, strict bool, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{tx: tx, strategies: strategies, strict: strict, log: log}
}

// Run reconciles all platforms; any failure rolls back the whole pass.
func (r *Reconciler) Run(ctx context.Context, progress ProgressFunc) (ReconcileReport, error) {
	var rep ReconcileReport
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		rep = ReconcileReport{}
		progress("loading employees", 0)
		emails, err := repos.Employees.EmailIndex(ctx)
		if err != nil {
			return fmt.Errorf("load employee emails: %w", err)
		}

		for i, st := range r.strategies {
			progress(fmt.Sprintf("reconciling %s", st.Platform), 100*float64(i)/float64(len(r.strategies)))

			instanceID, err := repos.Instances.PrimaryID(ctx, string(st.Platform))
			if errors.Is(err, errs.ErrNotFound) {
				if r.strict {
					return fmt.Errorf("%s: %w", st.Platform, errs.ErrNoPrimaryInstance)
				}
				r.log.Warn("platform skipped: no primary app instance", zap.String("platform", string(st.Platform)))
				rep.Skipped = append(rep.Skipped, SkippedPlatform{Platform: st.Platform, Reason: errs.ErrNoPrimaryInstance.Error()})
				continue
			}
			if err != nil {
				return fmt.Errorf("%s: resolve instance: %w", st.Platform, err)
			}

			pr, err := reconcilePlatform(ctx, repos, st, instanceID, emails)
			if err != nil {
				return fmt.Errorf("%s: %w", st.Platform, err)
			}
			r.log.Info("platform reconciled",
				zap.String("platform", string(st.Platform)),
				zap.Int("active", pr.Activated), zap.Int("suspended", pr.Suspended),
				zap.Int64("deactivated", pr.Deactivated), zap.Int("ignored", pr.Ignored))
			rep.Platforms = append(rep.Platforms, pr)
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	return rep, nil
}

func reconcilePlatform(
	ctx context.Context,
	repos repository.Repos,
	st Strategy,
	instanceID uuid.UUID,
	emails map[string]uuid.UUID,
) (PlatformReconcile, error) {
	pr := PlatformReconcile{Platform: st.Platform}

	raw, err := st.FetchRaw(ctx, repos.Mirrors)
	if err != nil {
		return pr, fmt.Errorf("load mirror: %w", err)
	}
	c := Classify(raw, emails, st.IsSuspended)
	pr.Activated, pr.Suspended, pr.Ignored = len(c.ToActivate), len(c.ToSuspend), c.Ignored
	seen := c.Seen()

	if pr.Created, err = repos.Accounts.EnsureExists(ctx, instanceID, seen); err != nil {
		return pr, fmt.Errorf("ensure accounts: %w", err)
	}
	if _, err = repos.Accounts.MarkSeen(ctx, instanceID, c.ToActivate, model.AccountActive); err != nil {
		return pr, fmt.Errorf("activate accounts: %w", err)
	}
	if _, err = repos.Accounts.MarkSeen(ctx, instanceID, c.ToSuspend, model.AccountSuspended); err != nil {
		return pr, fmt.Errorf("suspend accounts: %w", err)
	}

	existing, err := repos.Accounts.ListUserIDs(ctx, instanceID)
	if err != nil {
		return pr, fmt.Errorf("list accounts: %w", err)
	}
	if pr.Deactivated, err = repos.Accounts.MarkDeactivated(ctx, instanceID, Missing(existing, seen)); err != nil {
		return pr, fmt.Errorf("deactivate accounts: %w", err)
	}
	return pr, nil
}
