// Package platform defines the contract every external identity system adapter implements,
// together with the per-platform suspension predicates used by reconciliation.
package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/model"
)

// Adapter talks to one external identity system.
type Adapter interface {
	// Platform returns the key of the system this adapter serves.
	Platform() model.Platform
	// ListAll pages through every remote user. A failed page fails the whole listing.
	ListAll(ctx context.Context) ([]model.MirrorUser, error)
	// GetStatus looks up a single user by email. Failures are reported in the result.
	GetStatus(ctx context.Context, email string) model.StatusResult
	// Suspend disables a single user remotely. Best effort, never retried by callers.
	Suspend(ctx context.Context, email string) model.SuspendResult
}

// Registry holds configured adapters.
type Registry struct {
	byPlatform map[model.Platform]Adapter
}

// NewRegistry indexes adapters by platform; nil adapters are ignored.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byPlatform: make(map[model.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			r.byPlatform[a.Platform()] = a
		}
	}
	return r
}

// Get returns the adapter for p or errs.ErrPlatformNotConfigured.
func (r *Registry) Get(p model.Platform) (Adapter, error) {
	if a, ok := r.byPlatform[p]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%s: %w", p, errs.ErrPlatformNotConfigured)
}

// Ordered returns configured adapters in registry order.
func (r *Registry) Ordered() []Adapter {
	out := make([]Adapter, 0, len(r.byPlatform))
	for _, p := range model.Platforms {
		if a, ok := r.byPlatform[p]; ok {
			out = append(out, a)
		}
	}
	return out
}

// ldapAccountDisable is the ACCOUNTDISABLE bit of userAccountControl.
const ldapAccountDisable = 0x2

// IsSuspended evaluates the platform's "account disabled" predicate on a mirrored status value.
func IsSuspended(p model.Platform, status string) bool {
	s := strings.TrimSpace(status)
	switch p {
	case model.PlatformGoogle, model.PlatformSlack:
		b, _ := strconv.ParseBool(s)
		return b
	case model.PlatformJumpCloud:
		return s != "ACTIVATED"
	case model.PlatformAtlassian:
		return s != "active"
	case model.PlatformLDAP:
		uac, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return false
		}
		return uac&ldapAccountDisable != 0
	default:
		return false
	}
}

// StatusOf builds a lookup result for a user found on the platform.
func StatusOf(p model.Platform, u model.MirrorUser) model.StatusResult {
	res := model.StatusResult{Platform: p, Status: model.StatusActive, User: &u}
	if IsSuspended(p, u.Status) {
		res.Status = model.StatusSuspended
	}
	return res
}

// NotFound builds a lookup result for an unknown email.
func NotFound(p model.Platform, email string) model.StatusResult {
	return model.StatusResult{Platform: p, Status: model.StatusNotFound, Details: "no account for " + email}
}

// Failed builds a lookup result carrying the error text.
func Failed(p model.Platform, err error) model.StatusResult {
	return model.StatusResult{Platform: p, Status: model.StatusError, Details: err.Error()}
}

// Suspended is the success result of a suspension.
func Suspended(p model.Platform, email string) model.SuspendResult {
	return model.SuspendResult{Success: true, Message: fmt.Sprintf("%s: %s suspended", p, email)}
}

// SuspendFailed reports a failed suspension.
func SuspendFailed(p model.Platform, email string, err error) model.SuspendResult {
	return model.SuspendResult{Message: fmt.Sprintf("%s: suspend %s: %v", p, email, err)}
}
