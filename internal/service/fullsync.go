package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/repository"
)

// SyncReport summarizes one mirror refresh.
type SyncReport struct {
	Platform  model.Platform `json:"platform"`
	Listed    int            `json:"listed"`
	Upserted  int64          `json:"upserted"`
	Retracted int64          `json:"retracted,omitempty"`
	NotFound  int            `json:"not_found,omitempty"`
	Failed    int            `json:"failed,omitempty"`
}

// FullSync refreshes a platform mirror from a bulk listing.
type FullSync struct {
	adapter   platform.Adapter
	mirrors   repository.MirrorRepository
	chunkSize int
	log       *zap.Logger
}

// NewFullSync constructs a FullSync; chunkSize bounds rows per upsert statement.
func NewFullSync(adapter platform.Adapter, mirrors repository.MirrorRepository, chunkSize int, log *zap.Logger) *FullSync {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FullSync{
		adapter:   adapter,
		mirrors:   mirrors,
		chunkSize: chunkSize,
		log:       log.With(zap.String("platform", string(adapter.Platform()))),
	}
}

// Run lists every remote user before writing anything, so a failed listing leaves the
// previous snapshot intact. Once every chunk is stored, rows the listing no longer
// returned are marked absent; they are kept, but reconciliation stops seeing them.
func (s *FullSync) Run(ctx context.Context, progress ProgressFunc) (SyncReport, error) {
	p := s.adapter.Platform()
	rep := SyncReport{Platform: p}

	progress("listing users", 0)
	users, err := s.adapter.ListAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("%s: list users: %w", p, err)
	}
	rep.Listed = len(users)
	progress(fmt.Sprintf("listed %d users", len(users)), 10)

	for start := 0; start < len(users); start += s.chunkSize {
		end := min(start+s.chunkSize, len(users))
		n, err := s.mirrors.Upsert(ctx, p, users[start:end])
		if err != nil {
			return rep, fmt.Errorf("%s: upsert mirror: %w", p, err)
		}
		rep.Upserted += n
		progress(fmt.Sprintf("upserted %d/%d", end, len(users)), 10+90*float64(end)/float64(len(users)))
	}

	keep := make([]string, 0, len(users))
	for _, u := range users {
		keep = append(keep, u.NativeID)
	}
	rep.Retracted, err = s.mirrors.MarkAbsentExcept(ctx, p, keep)
	if err != nil {
		return rep, fmt.Errorf("%s: retract missing users: %w", p, err)
	}
	progress("mirror refreshed", 100)

	s.log.Info("mirror refreshed",
		zap.Int("count", rep.Listed), zap.Int64("upserted", rep.Upserted), zap.Int64("retracted", rep.Retracted))
	return rep, nil
}
