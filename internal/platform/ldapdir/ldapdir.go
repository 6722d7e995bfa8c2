// Package ldapdir implements an LDAP / Active Directory adapter using paged subtree searches.
package ldapdir

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
)

const (
	defaultFilter   = "(&(objectCategory=person)(objectClass=user))"
	defaultPageSize = 500
	accountDisable  = 0x2
	normalAccount   = "512"
)

var attributes = []string{"objectGUID", "entryUUID", "mail", "displayName", "cn", "userAccountControl"}

// Conn is the subset of *ldap.Conn used by the adapter.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
}

// Dialer opens a connection and returns a function that closes it.
type Dialer func(ctx context.Context) (Conn, func(), error)

// Config holds directory connection settings.
type Config struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	Filter       string
	PageSize     uint32
	Logger       *zap.Logger
	// Dial overrides the default ldap.DialURL dialer.
	Dial Dialer
}

// Adapter implements platform.Adapter for an LDAP directory.
type Adapter struct {
	cfg  Config
	dial Dialer
	log  *zap.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

// New builds the adapter. Connections are opened per operation.
func New(cfg Config) *Adapter {
	if cfg.Filter == "" {
		cfg.Filter = defaultFilter
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dial := cfg.Dial
	if dial == nil {
		url := cfg.URL
		dial = func(context.Context) (Conn, func(), error) {
			c, err := ldap.DialURL(url)
			if err != nil {
				return nil, nil, err
			}
			return c, func() { c.Close() }, nil
		}
	}
	return &Adapter{cfg: cfg, dial: dial, log: log.With(zap.String("platform", string(model.PlatformLDAP)))}
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() model.Platform { return model.PlatformLDAP }

func (a *Adapter) connect(ctx context.Context) (Conn, func(), error) {
	c, closeFn, err := a.dial(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("ldap dial: %w", err)
	}
	if a.cfg.BindDN != "" {
		if err := c.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("ldap bind: %w", err)
		}
	}
	return c, closeFn, nil
}

// ListAll runs a paged search over the base DN and follows the paging cookie.
func (a *Adapter) ListAll(ctx context.Context) ([]model.MirrorUser, error) {
	c, closeFn, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	pageControl := ldap.NewControlPaging(a.cfg.PageSize)
	req := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		a.cfg.Filter,
		attributes,
		[]ldap.Control{pageControl},
	)

	var out []model.MirrorUser
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := c.Search(req)
		if err != nil {
			return nil, fmt.Errorf("ldap search: %w", err)
		}
		for _, e := range res.Entries {
			if u, ok := toMirror(e); ok {
				out = append(out, u)
			}
		}
		paging, ok := ldap.FindControl(res.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(paging.Cookie) == 0 {
			break
		}
		pageControl.SetCookie(paging.Cookie)
	}
	a.log.Debug("listed users", zap.Int("count", len(out)))
	return out, nil
}

func (a *Adapter) findEntry(c Conn, email string) (*ldap.Entry, error) {
	filter := fmt.Sprintf("(&%s(mail=%s))", a.cfg.Filter, ldap.EscapeFilter(strings.TrimSpace(email)))
	req := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2, 0, false,
		filter,
		attributes,
		nil,
	)
	res, err := c.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0], nil
}

// GetStatus implements platform.Adapter.
func (a *Adapter) GetStatus(ctx context.Context, email string) model.StatusResult {
	c, closeFn, err := a.connect(ctx)
	if err != nil {
		return platform.Failed(model.PlatformLDAP, err)
	}
	defer closeFn()

	e, err := a.findEntry(c, email)
	if err != nil {
		return platform.Failed(model.PlatformLDAP, err)
	}
	if e == nil {
		return platform.NotFound(model.PlatformLDAP, email)
	}
	u, _ := toMirror(e)
	return platform.StatusOf(model.PlatformLDAP, u)
}

// Suspend sets the ACCOUNTDISABLE bit on userAccountControl.
func (a *Adapter) Suspend(ctx context.Context, email string) model.SuspendResult {
	c, closeFn, err := a.connect(ctx)
	if err != nil {
		return platform.SuspendFailed(model.PlatformLDAP, email, err)
	}
	defer closeFn()

	e, err := a.findEntry(c, email)
	if err != nil {
		return platform.SuspendFailed(model.PlatformLDAP, email, err)
	}
	if e == nil {
		return platform.SuspendFailed(model.PlatformLDAP, email, fmt.Errorf("user not found"))
	}
	uac, err := strconv.ParseInt(uacOf(e), 10, 64)
	if err != nil {
		return platform.SuspendFailed(model.PlatformLDAP, email, fmt.Errorf("userAccountControl: %w", err))
	}
	mod := ldap.NewModifyRequest(e.DN, nil)
	mod.Replace("userAccountControl", []string{strconv.FormatInt(uac|accountDisable, 10)})
	if err := c.Modify(mod); err != nil {
		return platform.SuspendFailed(model.PlatformLDAP, email, err)
	}
	a.log.Info("user suspended", zap.String("email", email), zap.String("dn", e.DN))
	return platform.Suspended(model.PlatformLDAP, email)
}

func uacOf(e *ldap.Entry) string {
	if v := strings.TrimSpace(e.GetAttributeValue("userAccountControl")); v != "" {
		return v
	}
	return normalAccount
}

// toMirror drops entries without a mail attribute.
func toMirror(e *ldap.Entry) (model.MirrorUser, bool) {
	email := strings.TrimSpace(e.GetAttributeValue("mail"))
	if email == "" {
		return model.MirrorUser{}, false
	}
	id := ""
	if raw := e.GetRawAttributeValue("objectGUID"); len(raw) > 0 {
		id = hex.EncodeToString(raw)
	} else if v := e.GetAttributeValue("entryUUID"); v != "" {
		id = v
	} else {
		id = e.DN
	}
	name := e.GetAttributeValue("displayName")
	if name == "" {
		name = e.GetAttributeValue("cn")
	}
	return model.MirrorUser{NativeID: id, Email: email, DisplayName: name, Status: uacOf(e)}, true
}
