package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/repository"
)

// Audit actions.
const (
	ActionSyncTrigger    = "sync.trigger"
	ActionSyncSummary    = "sync.summary"
	ActionAccountSuspend = "account.suspend"

	// SystemActor is recorded for actions without an authenticated operator.
	SystemActor = "system"
)

// AuditService appends administrative actions to the audit trail.
type AuditService interface {
	// Record appends one entry; details are JSON-encoded when non-nil.
	Record(ctx context.Context, actor, action, target string, details any) error
	// Summarize records the current account status counts after a sync run.
	Summarize(ctx context.Context, progress ProgressFunc) (AuditSummary, error)
}

// AuditSummary is the payload of a sync.summary entry.
type AuditSummary struct {
	Counts []StatusCountView `json:"counts"`
	Total  int               `json:"total"`
}

// StatusCountView is the JSON form of a status count.
type StatusCountView struct {
	AppKey string `json:"app_key"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type AuditServiceImpl struct {
	audit    repository.AuditRepository
	accounts repository.AccountRepository
	log      *zap.Logger
}

// NewAuditService constructs AuditService.
func NewAuditService(audit repository.AuditRepository, accounts repository.AccountRepository, log *zap.Logger) *AuditServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditServiceImpl{audit: audit, accounts: accounts, log: log}
}

func (s *AuditServiceImpl) Record(ctx context.Context, actor, action, target string, details any) error {
	if actor == "" {
		actor = SystemActor
	}
	e := model.AuditEntry{Actor: actor, Action: action, Target: target}
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		e.Details = b
	}
	if err := s.audit.Append(ctx, e); err != nil {
		return fmt.Errorf("append audit %s: %w", action, err)
	}
	return nil
}

func (s *AuditServiceImpl) Summarize(ctx context.Context, progress ProgressFunc) (AuditSummary, error) {
	progress("counting accounts", 0)
	counts, err := s.accounts.CountByStatus(ctx)
	if err != nil {
		return AuditSummary{}, fmt.Errorf("count accounts: %w", err)
	}
	sum := AuditSummary{Counts: make([]StatusCountView, 0, len(counts))}
	for _, c := range counts {
		sum.Counts = append(sum.Counts, StatusCountView{AppKey: c.AppKey, Status: string(c.Status), Count: c.Count})
		sum.Total += c.Count
	}
	progress("writing audit entry", 50)
	if err := s.Record(ctx, SystemActor, ActionSyncSummary, "user_accounts", sum); err != nil {
		return AuditSummary{}, err
	}
	s.log.Info("access audit recorded", zap.Int("count", sum.Total))
	return sum, nil
}
