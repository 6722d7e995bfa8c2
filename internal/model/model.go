// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Platform identifies an external identity system. It doubles as the app key of its AppInstance.
type Platform string

// Known platforms.
const (
	PlatformGoogle    Platform = "GOOGLE"
	PlatformSlack     Platform = "SLACK"
	PlatformJumpCloud Platform = "JUMPCLOUD"
	PlatformAtlassian Platform = "ATLASSIAN"
	PlatformLDAP      Platform = "LDAP"
)

// Platforms lists every known platform in registry order.
var Platforms = []Platform{PlatformJumpCloud, PlatformGoogle, PlatformAtlassian, PlatformLDAP, PlatformSlack}

// ParsePlatform resolves a case-insensitive platform key.
func ParsePlatform(s string) (Platform, bool) {
	for _, p := range Platforms {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// Employee is an identity known to the organization. Read-only to the sync core.
type Employee struct {
	ID               uuid.UUID
	Email            string // unique
	FullName         string
	IsActive         bool
	AccessCutoffDate *time.Time // nil = no cutoff
}

// HasAccessOn reports whether the employee is active and not past the cutoff date at t.
func (e Employee) HasAccessOn(t time.Time) bool {
	if !e.IsActive {
		return false
	}
	if e.AccessCutoffDate == nil {
		return true
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return !e.AccessCutoffDate.Before(day)
}

// AppInstance is a concrete deployment of a managed application acting as an identity source.
type AppInstance struct {
	ID        uuid.UUID
	AppKey    string
	Name      string
	IsPrimary bool
}

// MirrorUser is one row of a platform raw mirror table.
// Status holds the platform-native status column rendered as text
// ("true"/"false", an enum value, or a decimal flag word).
type MirrorUser struct {
	NativeID    string
	Email       string
	DisplayName string
	Status      string
	SyncedAt    time.Time
}

// AccountStatus is the unified three-state access status.
type AccountStatus string

// Account statuses.
const (
	AccountActive      AccountStatus = "active"
	AccountSuspended   AccountStatus = "suspended"
	AccountDeactivated AccountStatus = "deactivated"
)

// UserAccount is the unified cross-platform access record, unique per (UserID, AppInstanceID).
type UserAccount struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AppInstanceID uuid.UUID
	AppKey        string // joined from app_instances for reads
	Status        AccountStatus
	LastSeenAt    *time.Time
	UpdatedAt     time.Time
}

// JobStatus is the lifecycle state of a SyncJob.
type JobStatus string

// Job statuses.
const (
	JobIdle    JobStatus = "IDLE"
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
)

// SyncJob is the persistent status record of one named job.
type SyncJob struct {
	Name          string
	Status        JobStatus
	Progress      int // 0..100
	CurrentStep   string
	RunID         uuid.UUID
	LastRunAt     *time.Time
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	Details       json.RawMessage // structured payload, nil when empty
}

// FailureDetails is the payload stored in SyncJob.Details on failure.
type FailureDetails struct {
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

// PlatformStatus is the outcome of a single-user status lookup.
type PlatformStatus string

// Platform lookup outcomes.
const (
	StatusActive    PlatformStatus = "Active"
	StatusSuspended PlatformStatus = "Suspended"
	StatusNotFound  PlatformStatus = "NotFound"
	StatusError     PlatformStatus = "Error"
)

// StatusResult is returned by a platform single-user lookup.
// User is set when the account exists on the platform.
type StatusResult struct {
	Platform Platform
	Status   PlatformStatus
	Details  string
	User     *MirrorUser
}

// SuspendResult is returned by a best-effort remote suspension.
type SuspendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AuditEntry is one administrative action in the audit trail.
type AuditEntry struct {
	ID        uuid.UUID
	Actor     string
	Action    string
	Target    string
	Details   json.RawMessage
	CreatedAt time.Time
}

// StatusCount is the number of accounts in one status for one app key.
type StatusCount struct {
	AppKey string
	Status AccountStatus
	Count  int
}
