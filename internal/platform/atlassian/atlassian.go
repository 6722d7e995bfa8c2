// Package atlassian implements the Atlassian organization directory adapter.
package atlassian

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/identity"
	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/platform/httpx"
)

const defaultBaseURL = "https://api.atlassian.com"

// Config holds Atlassian org admin credentials.
type Config struct {
	OrgID      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Adapter implements platform.Adapter for Atlassian.
type Adapter struct {
	api   *httpx.Client
	orgID string
	log   *zap.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

type orgUser struct {
	AccountID     string `json:"account_id"`
	AccountType   string `json:"account_type"`
	AccountStatus string `json:"account_status"`
	Name          string `json:"name"`
	Email         string `json:"email"`
}

type usersPage struct {
	Data  []orgUser `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// New builds the adapter.
func New(cfg Config) *Adapter {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base := cfg.BaseURL
	if strings.TrimSpace(base) == "" {
		base = defaultBaseURL
	}
	key := cfg.APIKey
	return &Adapter{
		api: httpx.New(httpx.Options{
			BaseURL:    base,
			HTTPClient: cfg.HTTPClient,
			Auth:       func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+key) },
			Logger:     log,
		}),
		orgID: cfg.OrgID,
		log:   log.With(zap.String("platform", string(model.PlatformAtlassian))),
	}
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() model.Platform { return model.PlatformAtlassian }

// ListAll follows the directory cursor until exhausted.
func (a *Adapter) ListAll(ctx context.Context) ([]model.MirrorUser, error) {
	users, err := a.listRaw(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.MirrorUser, 0, len(users))
	for _, u := range users {
		out = append(out, toMirror(u))
	}
	return out, nil
}

func (a *Adapter) listRaw(ctx context.Context) ([]orgUser, error) {
	path := "/admin/v1/orgs/" + url.PathEscape(a.orgID) + "/users"
	var (
		out    []orgUser
		cursor string
	)
	for {
		q := url.Values{}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page usersPage
		if err := a.api.GetJSON(ctx, path, q, &page); err != nil {
			return nil, fmt.Errorf("atlassian list: %w", err)
		}
		out = append(out, page.Data...)
		next := nextCursor(page.Links.Next)
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	a.log.Debug("listed users", zap.Int("count", len(out)))
	return out, nil
}

// nextCursor accepts either a bare cursor or a full next-page link.
func nextCursor(next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return ""
	}
	if u, err := url.Parse(next); err == nil && u.RawQuery != "" {
		if c := u.Query().Get("cursor"); c != "" {
			return c
		}
	}
	return next
}

// GetStatus scans the directory; the org API has no email filter.
func (a *Adapter) GetStatus(ctx context.Context, email string) model.StatusResult {
	u, err := a.find(ctx, email)
	if err != nil {
		return platform.Failed(model.PlatformAtlassian, err)
	}
	if u == nil {
		return platform.NotFound(model.PlatformAtlassian, email)
	}
	return platform.StatusOf(model.PlatformAtlassian, toMirror(*u))
}

// Suspend disables the account through the user management lifecycle API.
func (a *Adapter) Suspend(ctx context.Context, email string) model.SuspendResult {
	u, err := a.find(ctx, email)
	if err != nil {
		return platform.SuspendFailed(model.PlatformAtlassian, email, err)
	}
	if u == nil {
		return platform.SuspendFailed(model.PlatformAtlassian, email, fmt.Errorf("user not found"))
	}
	path := "/users/" + url.PathEscape(u.AccountID) + "/manage/lifecycle/disable"
	if err := a.api.DoOnce(ctx, http.MethodPost, path, nil, map[string]string{}, nil); err != nil {
		return platform.SuspendFailed(model.PlatformAtlassian, email, err)
	}
	a.log.Info("user suspended", zap.String("email", email), zap.String("account_id", u.AccountID))
	return platform.Suspended(model.PlatformAtlassian, email)
}

func (a *Adapter) find(ctx context.Context, email string) (*orgUser, error) {
	want := identity.NormalizeEmail(email)
	if want == "" {
		return nil, nil
	}
	users, err := a.listRaw(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if identity.NormalizeEmail(users[i].Email) == want {
			return &users[i], nil
		}
	}
	return nil, nil
}

func toMirror(u orgUser) model.MirrorUser {
	return model.MirrorUser{NativeID: u.AccountID, Email: u.Email, DisplayName: u.Name, Status: u.AccountStatus}
}
