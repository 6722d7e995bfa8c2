// Package convert maps domain entities to the JSON views served by the HTTP API and read by the CLI.
package convert

import (
	"encoding/json"
	"time"

	model "github.com/and161185/access-sync/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// --- helpers ---

func ts(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

func runID(id u.UUID) string {
	if id == u.Nil {
		return ""
	}
	return id.String()
}

// --- Sync jobs ---

// JobView is the JSON form of a SyncJob.
type JobView struct {
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	Progress      int             `json:"progress"`
	CurrentStep   string          `json:"current_step"`
	RunID         string          `json:"run_id,omitempty"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	LastSuccessAt *time.Time      `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time      `json:"last_failure_at,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
}

// ToJobView converts a SyncJob.
func ToJobView(j model.SyncJob) JobView {
	return JobView{
		Name:          j.Name,
		Status:        string(j.Status),
		Progress:      j.Progress,
		CurrentStep:   j.CurrentStep,
		RunID:         runID(j.RunID),
		LastRunAt:     ts(j.LastRunAt),
		LastSuccessAt: ts(j.LastSuccessAt),
		LastFailureAt: ts(j.LastFailureAt),
		Details:       j.Details,
	}
}

// ToJobViews converts a job snapshot; never returns nil.
func ToJobViews(js []model.SyncJob) []JobView {
	out := make([]JobView, 0, len(js))
	for _, j := range js {
		out = append(out, ToJobView(j))
	}
	return out
}

// --- Platform lookups ---

// StatusView is the JSON form of a single-user lookup.
type StatusView struct {
	Platform    string `json:"platform"`
	Status      string `json:"status"`
	Details     string `json:"details,omitempty"`
	NativeID    string `json:"native_id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// ToStatusView converts a StatusResult.
func ToStatusView(r model.StatusResult) StatusView {
	v := StatusView{Platform: string(r.Platform), Status: string(r.Status), Details: r.Details}
	if r.User != nil {
		v.NativeID, v.Email, v.DisplayName = r.User.NativeID, r.User.Email, r.User.DisplayName
	}
	return v
}

// SuspendView is the JSON form of a suspension attempt.
type SuspendView struct {
	Platform string `json:"platform"`
	Email    string `json:"email"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// ToSuspendView converts a SuspendResult.
func ToSuspendView(p model.Platform, email string, r model.SuspendResult) SuspendView {
	return SuspendView{Platform: string(p), Email: email, Success: r.Success, Message: r.Message}
}

// --- Accounts ---

// AccountView is the JSON form of a UserAccount.
type AccountView struct {
	ID            string     `json:"id"`
	AppKey        string     `json:"app_key"`
	AppInstanceID string     `json:"app_instance_id"`
	Status        string     `json:"status"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// ToAccountViews converts accounts; never returns nil.
func ToAccountViews(as []model.UserAccount) []AccountView {
	out := make([]AccountView, 0, len(as))
	for _, a := range as {
		updated := a.UpdatedAt
		out = append(out, AccountView{
			ID:            a.ID.String(),
			AppKey:        a.AppKey,
			AppInstanceID: a.AppInstanceID.String(),
			Status:        string(a.Status),
			LastSeenAt:    ts(a.LastSeenAt),
			UpdatedAt:     ts(&updated),
		})
	}
	return out
}
