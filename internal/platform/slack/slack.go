// Package slack implements the Slack workspace adapter. Listing and lookups go through the Web API,
// deactivation through SCIM.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/platform/httpx"
)

const (
	defaultSCIMURL = "https://api.slack.com"
	errUserMissing = "users_not_found"
)

// Config holds Slack tokens.
type Config struct {
	BotToken  string
	SCIMToken string
	// APIURL overrides the Web API base, must end with a slash.
	APIURL     string
	SCIMURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Adapter implements platform.Adapter for Slack.
type Adapter struct {
	api  *slack.Client
	scim *httpx.Client
	log  *zap.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

// New builds the adapter.
func New(cfg Config) *Adapter {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(cfg.HTTPClient))
	}
	scimURL := cfg.SCIMURL
	if scimURL == "" {
		scimURL = defaultSCIMURL
	}
	scimToken := cfg.SCIMToken
	return &Adapter{
		api: slack.New(cfg.BotToken, opts...),
		scim: httpx.New(httpx.Options{
			BaseURL:    scimURL,
			HTTPClient: cfg.HTTPClient,
			Auth:       func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+scimToken) },
			Logger:     log,
		}),
		log: log.With(zap.String("platform", string(model.PlatformSlack))),
	}
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() model.Platform { return model.PlatformSlack }

// ListAll returns human members; bots and app users are skipped.
func (a *Adapter) ListAll(ctx context.Context) ([]model.MirrorUser, error) {
	members, err := a.api.GetUsersContext(ctx, slack.GetUsersOptionLimit(200))
	if err != nil {
		return nil, fmt.Errorf("slack list: %w", err)
	}
	out := make([]model.MirrorUser, 0, len(members))
	for _, m := range members {
		if m.IsBot || m.IsAppUser || m.ID == "USLACKBOT" {
			continue
		}
		out = append(out, toMirror(m))
	}
	a.log.Debug("listed users", zap.Int("count", len(out)))
	return out, nil
}

// GetStatus uses users.lookupByEmail.
func (a *Adapter) GetStatus(ctx context.Context, email string) model.StatusResult {
	u, err := a.api.GetUserByEmailContext(ctx, strings.TrimSpace(email))
	if err != nil {
		if isUserMissing(err) {
			return platform.NotFound(model.PlatformSlack, email)
		}
		return platform.Failed(model.PlatformSlack, err)
	}
	return platform.StatusOf(model.PlatformSlack, toMirror(*u))
}

// Suspend deactivates the member through SCIM.
func (a *Adapter) Suspend(ctx context.Context, email string) model.SuspendResult {
	u, err := a.api.GetUserByEmailContext(ctx, strings.TrimSpace(email))
	if err != nil {
		return platform.SuspendFailed(model.PlatformSlack, email, err)
	}
	if err := a.scim.DoOnce(ctx, http.MethodDelete, "/scim/v1/Users/"+url.PathEscape(u.ID), nil, nil, nil); err != nil {
		return platform.SuspendFailed(model.PlatformSlack, email, err)
	}
	a.log.Info("user suspended", zap.String("email", email), zap.String("id", u.ID))
	return platform.Suspended(model.PlatformSlack, email)
}

func isUserMissing(err error) bool {
	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		return se.Err == errUserMissing
	}
	return strings.Contains(err.Error(), errUserMissing)
}

func toMirror(u slack.User) model.MirrorUser {
	name := u.RealName
	if name == "" {
		name = u.Profile.RealName
	}
	if name == "" {
		name = u.Name
	}
	return model.MirrorUser{NativeID: u.ID, Email: u.Profile.Email, DisplayName: name, Status: strconv.FormatBool(u.Deleted)}
}
