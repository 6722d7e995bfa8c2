// Package jumpcloud implements the JumpCloud system users adapter.
package jumpcloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/platform/httpx"
)

const (
	defaultBaseURL = "https://console.jumpcloud.com"
	pageSize       = 100

	stateActivated = "ACTIVATED"
	stateSuspended = "SUSPENDED"
)

// Config holds JumpCloud credentials.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Adapter implements platform.Adapter for JumpCloud.
type Adapter struct {
	api *httpx.Client
	log *zap.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

type systemUser struct {
	ID        string `json:"_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	State     string `json:"state"`
	Suspended bool   `json:"suspended"`
}

type listResponse struct {
	TotalCount int          `json:"totalCount"`
	Results    []systemUser `json:"results"`
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
			Auth:       func(r *http.Request) { r.Header.Set("x-api-key", key) },
			Logger:     log,
		}),
		log: log.With(zap.String("platform", string(model.PlatformJumpCloud))),
	}
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() model.Platform { return model.PlatformJumpCloud }

// ListAll pages with limit/skip until the reported total is reached.
func (a *Adapter) ListAll(ctx context.Context) ([]model.MirrorUser, error) {
	var out []model.MirrorUser
	for skip := 0; ; skip += pageSize {
		q := url.Values{"limit": {strconv.Itoa(pageSize)}, "skip": {strconv.Itoa(skip)}}
		var page listResponse
		if err := a.api.GetJSON(ctx, "/api/systemusers", q, &page); err != nil {
			return nil, fmt.Errorf("jumpcloud list (skip=%d): %w", skip, err)
		}
		for _, u := range page.Results {
			out = append(out, toMirror(u))
		}
		if len(page.Results) < pageSize || skip+len(page.Results) >= page.TotalCount {
			break
		}
	}
	a.log.Debug("listed users", zap.Int("count", len(out)))
	return out, nil
}

// GetStatus implements platform.Adapter.
func (a *Adapter) GetStatus(ctx context.Context, email string) model.StatusResult {
	u, err := a.lookup(ctx, email)
	if err != nil {
		return platform.Failed(model.PlatformJumpCloud, err)
	}
	if u == nil {
		return platform.NotFound(model.PlatformJumpCloud, email)
	}
	return platform.StatusOf(model.PlatformJumpCloud, toMirror(*u))
}

// Suspend sets suspended=true on the system user.
func (a *Adapter) Suspend(ctx context.Context, email string) model.SuspendResult {
	u, err := a.lookup(ctx, email)
	if err != nil {
		return platform.SuspendFailed(model.PlatformJumpCloud, email, err)
	}
	if u == nil {
		return platform.SuspendFailed(model.PlatformJumpCloud, email, fmt.Errorf("user not found"))
	}
	body := map[string]bool{"suspended": true}
	if err := a.api.DoOnce(ctx, http.MethodPut, "/api/systemusers/"+url.PathEscape(u.ID), nil, body, nil); err != nil {
		return platform.SuspendFailed(model.PlatformJumpCloud, email, err)
	}
	a.log.Info("user suspended", zap.String("email", email), zap.String("id", u.ID))
	return platform.Suspended(model.PlatformJumpCloud, email)
}

func (a *Adapter) lookup(ctx context.Context, email string) (*systemUser, error) {
	q := url.Values{"filter": {"email:$eq:" + strings.TrimSpace(email)}, "limit": {"1"}}
	var page listResponse
	if err := a.api.GetJSON(ctx, "/api/systemusers", q, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, nil
	}
	return &page.Results[0], nil
}

func toMirror(u systemUser) model.MirrorUser {
	state := u.State
	if state == "" {
		state = stateActivated
		if u.Suspended {
			state = stateSuspended
		}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return model.MirrorUser{NativeID: u.ID, Email: u.Email, DisplayName: name, Status: state}
}
