package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/identity"
	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/repository"
)

// AccessService exposes on-demand operator actions against platforms.
type AccessService interface {
	// CheckStatus performs a live single-user lookup.
	CheckStatus(ctx context.Context, p model.Platform, email string) (model.StatusResult, error)
	// Suspend disables a user remotely and audits the attempt.
	Suspend(ctx context.Context, actor string, p model.Platform, email string) (model.SuspendResult, error)
	// Accounts lists the reconciled accounts of an employee.
	Accounts(ctx context.Context, employeeID uuid.UUID) ([]model.UserAccount, error)
}

type AccessServiceImpl struct {
	adapters *platform.Registry
	accounts repository.AccountRepository
	audit    AuditService
	log      *zap.Logger
}

// NewAccessService constructs AccessService.
func NewAccessService(adapters *platform.Registry, accounts repository.AccountRepository, audit AuditService, log *zap.Logger) *AccessServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccessServiceImpl{adapters: adapters, accounts: accounts, audit: audit, log: log}
}

func validEmail(email string) error {
	if identity.NormalizeEmail(email) == "" {
		return fmt.Errorf("email %q: %w", email, errs.ErrInvalidInput)
	}
	return nil
}

func (s *AccessServiceImpl) CheckStatus(ctx context.Context, p model.Platform, email string) (model.StatusResult, error) {
	if err := validEmail(email); err != nil {
		return model.StatusResult{}, err
	}
	a, err := s.adapters.Get(p)
	if err != nil {
		return model.StatusResult{}, err
	}
	return a.GetStatus(ctx, email), nil
}

func (s *AccessServiceImpl) Suspend(ctx context.Context, actor string, p model.Platform, email string) (model.SuspendResult, error) {
	if err := validEmail(email); err != nil {
		return model.SuspendResult{}, err
	}
	a, err := s.adapters.Get(p)
	if err != nil {
		return model.SuspendResult{}, err
	}
	res := a.Suspend(ctx, email)
	if err := s.audit.Record(ctx, actor, ActionAccountSuspend, string(p)+":"+email, res); err != nil {
		s.log.Error("audit suspend", zap.String("platform", string(p)), zap.Error(err))
	}
	return res, nil
}

func (s *AccessServiceImpl) Accounts(ctx context.Context, employeeID uuid.UUID) ([]model.UserAccount, error) {
	if employeeID == uuid.Nil {
		return nil, fmt.Errorf("employee id: %w", errs.ErrInvalidInput)
	}
	return s.accounts.ListByEmployee(ctx, employeeID)
}
