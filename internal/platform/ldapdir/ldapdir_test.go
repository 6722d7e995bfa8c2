package ldapdir

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/access-sync/internal/model"
)

type fakeConn struct {
	pages    [][]*ldap.Entry
	searches int
	bound    string
	modified *ldap.ModifyRequest
	closed   bool
	failPage int
}

func (f *fakeConn) Bind(user, _ string) error {
	if user == "cn=bad" {
		return errors.New("invalid credentials")
	}
	f.bound = user
	return nil
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.searches++
	if strings.Contains(req.Filter, "(mail=") {
		var out []*ldap.Entry
		for _, page := range f.pages {
			for _, e := range page {
				if strings.Contains(req.Filter, "(mail="+e.GetAttributeValue("mail")+")") {
					out = append(out, e)
				}
			}
		}
		return &ldap.SearchResult{Entries: out}, nil
	}

	idx := 0
	if pc, ok := ldap.FindControl(req.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging); ok && len(pc.Cookie) > 0 {
		idx = int(pc.Cookie[0])
	}
	if idx == f.failPage {
		return nil, errors.New("server busy")
	}
	res := &ldap.SearchResult{Entries: f.pages[idx]}
	next := &ldap.ControlPaging{PagingSize: 2}
	if idx+1 < len(f.pages) {
		next.Cookie = []byte{byte(idx + 1)}
	}
	res.Controls = []ldap.Control{next}
	return res, nil
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	f.modified = req
	return nil
}

func newAdapter(f *fakeConn, bindDN string) *Adapter {
	return New(Config{
		BindDN: bindDN,
		BaseDN: "dc=x,dc=io",
		Dial: func(context.Context) (Conn, func(), error) {
			return f, func() { f.closed = true }, nil
		},
	})
}

func directory() *fakeConn {
	return &fakeConn{
		failPage: -1,
		pages: [][]*ldap.Entry{
			{
				ldap.NewEntry("cn=ann,dc=x,dc=io", map[string][]string{
					"objectGUID": {"\x01\xab"}, "mail": {"ann@x.io"}, "displayName": {"Ann"}, "userAccountControl": {"512"},
				}),
				ldap.NewEntry("cn=svc,dc=x,dc=io", map[string][]string{"cn": {"svc"}}),
			},
			{
				ldap.NewEntry("cn=bob,dc=x,dc=io", map[string][]string{
					"entryUUID": {"uuid-bob"}, "mail": {"bob@x.io"}, "cn": {"Bob"}, "userAccountControl": {"514"},
				}),
			},
		},
	}
}

func TestListAll_FollowsPagingCookie(t *testing.T) {
	f := directory()
	a := newAdapter(f, "cn=reader")

	users, err := a.ListAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, f.searches)
	require.Equal(t, "cn=reader", f.bound)
	require.True(t, f.closed)
	require.Equal(t, []model.MirrorUser{
		{NativeID: "01ab", Email: "ann@x.io", DisplayName: "Ann", Status: "512"},
		{NativeID: "uuid-bob", Email: "bob@x.io", DisplayName: "Bob", Status: "514"},
	}, users)
}

func TestListAll_PageFailure(t *testing.T) {
	f := directory()
	f.failPage = 1
	users, err := newAdapter(f, "").ListAll(context.Background())
	require.Error(t, err)
	require.Nil(t, users)
}

func TestBindFailure(t *testing.T) {
	f := directory()
	a := newAdapter(f, "cn=bad")
	require.Equal(t, model.StatusError, a.GetStatus(context.Background(), "ann@x.io").Status)
	require.True(t, f.closed)
}

func TestGetStatusAndSuspend(t *testing.T) {
	f := directory()
	a := newAdapter(f, "")
	ctx := context.Background()

	require.Equal(t, model.StatusActive, a.GetStatus(ctx, "ann@x.io").Status)
	require.Equal(t, model.StatusSuspended, a.GetStatus(ctx, "bob@x.io").Status)
	require.Equal(t, model.StatusNotFound, a.GetStatus(ctx, "zed@x.io").Status)

	res := a.Suspend(ctx, "ann@x.io")
	require.True(t, res.Success, res.Message)
	require.NotNil(t, f.modified)
	require.Equal(t, "cn=ann,dc=x,dc=io", f.modified.DN)
	require.Equal(t, []string{"514"}, f.modified.Changes[0].Modification.Vals)
}
