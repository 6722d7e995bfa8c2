// Package google implements the Google Workspace directory adapter on top of the Admin SDK.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
)

const (
	defaultCustomer = "my_customer"
	pageSize        = 500
)

// Config describes domain-wide delegation credentials.
type Config struct {
	// CredentialsFile is a service account JSON key with domain-wide delegation.
	CredentialsFile string
	// AdminEmail is the impersonated super admin.
	AdminEmail string
	Customer   string
	Logger     *zap.Logger
	// ClientOptions are appended after the credential options.
	ClientOptions []option.ClientOption
}

// Adapter implements platform.Adapter for Google Workspace.
type Adapter struct {
	svc      *admin.Service
	customer string
	log      *zap.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

// New builds the Admin SDK client.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read google credentials: %w", err)
		}
		jwtCfg, err := google.JWTConfigFromJSON(data, admin.AdminDirectoryUserScope)
		if err != nil {
			return nil, fmt.Errorf("parse google credentials: %w", err)
		}
		jwtCfg.Subject = cfg.AdminEmail
		opts = append(opts, option.WithHTTPClient(jwtCfg.Client(ctx)))
	}
	opts = append(opts, cfg.ClientOptions...)

	svc, err := admin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("admin directory client: %w", err)
	}
	customer := cfg.Customer
	if customer == "" {
		customer = defaultCustomer
	}
	return &Adapter{
		svc:      svc,
		customer: customer,
		log:      log.With(zap.String("platform", string(model.PlatformGoogle))),
	}, nil
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() model.Platform { return model.PlatformGoogle }

// ListAll walks users.list pages for the customer.
func (a *Adapter) ListAll(ctx context.Context) ([]model.MirrorUser, error) {
	var out []model.MirrorUser
	err := a.svc.Users.List().
		Customer(a.customer).
		MaxResults(pageSize).
		OrderBy("email").
		Pages(ctx, func(page *admin.Users) error {
			for _, u := range page.Users {
				out = append(out, toMirror(u))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("google list: %w", err)
	}
	a.log.Debug("listed users", zap.Int("count", len(out)))
	return out, nil
}

// GetStatus implements platform.Adapter.
func (a *Adapter) GetStatus(ctx context.Context, email string) model.StatusResult {
	u, err := a.svc.Users.Get(email).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return platform.NotFound(model.PlatformGoogle, email)
		}
		return platform.Failed(model.PlatformGoogle, err)
	}
	return platform.StatusOf(model.PlatformGoogle, toMirror(u))
}

// Suspend sets suspended=true on the user.
func (a *Adapter) Suspend(ctx context.Context, email string) model.SuspendResult {
	patch := &admin.User{Suspended: true, ForceSendFields: []string{"Suspended"}}
	if _, err := a.svc.Users.Update(email, patch).Context(ctx).Do(); err != nil {
		return platform.SuspendFailed(model.PlatformGoogle, email, err)
	}
	a.log.Info("user suspended", zap.String("email", email))
	return platform.Suspended(model.PlatformGoogle, email)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func toMirror(u *admin.User) model.MirrorUser {
	m := model.MirrorUser{NativeID: u.Id, Email: u.PrimaryEmail, Status: strconv.FormatBool(u.Suspended)}
	if u.Name != nil {
		m.DisplayName = u.Name.FullName
	}
	return m
}
