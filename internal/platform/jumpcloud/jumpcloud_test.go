package jumpcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/access-sync/internal/model"
)

func fakeDirectory(t *testing.T, total int, failSkip int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/systemusers":
			if f := r.URL.Query().Get("filter"); f != "" {
				if f == "email:$eq:bob@x.io" {
					_ = json.NewEncoder(w).Encode(listResponse{TotalCount: 1, Results: []systemUser{
						{ID: "b1", Email: "bob@x.io", State: "SUSPENDED"},
					}})
					return
				}
				_ = json.NewEncoder(w).Encode(listResponse{})
				return
			}
			skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
			if skip == failSkip {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var res []systemUser
			for i := skip; i < total && i < skip+pageSize; i++ {
				res = append(res, systemUser{ID: fmt.Sprintf("u%d", i), Email: fmt.Sprintf("u%d@x.io", i), State: "ACTIVATED"})
			}
			_ = json.NewEncoder(w).Encode(listResponse{TotalCount: total, Results: res})
		case r.Method == http.MethodPut && r.URL.Path == "/api/systemusers/b1":
			var body map[string]bool
			_ = json.NewDecoder(r.Body).Decode(&body)
			if !body["suspended"] {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestListAll_PagesUntilTotal(t *testing.T) {
	srv := fakeDirectory(t, 230, -1)
	defer srv.Close()
	a := New(Config{APIKey: "key", BaseURL: srv.URL, Logger: zaptest.NewLogger(t)})

	users, err := a.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 230)
	require.Equal(t, "u229", users[229].NativeID)
	require.Equal(t, "ACTIVATED", users[0].Status)
}

func TestListAll_PageFailureFailsWholeListing(t *testing.T) {
	srv := fakeDirectory(t, 230, 100)
	defer srv.Close()
	a := New(Config{APIKey: "key", BaseURL: srv.URL})

	users, err := a.ListAll(context.Background())
	require.Error(t, err)
	require.Nil(t, users)
}

func TestGetStatusAndSuspend(t *testing.T) {
	srv := fakeDirectory(t, 0, -1)
	defer srv.Close()
	a := New(Config{APIKey: "key", BaseURL: srv.URL})
	ctx := context.Background()

	require.Equal(t, model.StatusSuspended, a.GetStatus(ctx, "bob@x.io").Status)
	require.Equal(t, model.StatusNotFound, a.GetStatus(ctx, "nobody@x.io").Status)

	res := a.Suspend(ctx, "bob@x.io")
	require.True(t, res.Success, res.Message)
	require.False(t, a.Suspend(ctx, "nobody@x.io").Success)
}

func TestGetStatus_ErrorOnAuthFailure(t *testing.T) {
	srv := fakeDirectory(t, 0, -1)
	defer srv.Close()
	a := New(Config{APIKey: "wrong", BaseURL: srv.URL})

	res := a.GetStatus(context.Background(), "bob@x.io")
	require.Equal(t, model.StatusError, res.Status)
	require.Contains(t, res.Details, "401")
}

func TestToMirror_DerivesStateFromSuspendedFlag(t *testing.T) {
	m := toMirror(systemUser{ID: "1", Username: "jd", Suspended: true})
	require.Equal(t, "SUSPENDED", m.Status)
	require.Equal(t, "jd", m.DisplayName)
}

func TestSuspend_SingleAttemptOnServerError(t *testing.T) {
	var puts int32
	lookup := fakeDirectory(t, 0, -1)
	defer lookup.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			atomic.AddInt32(&puts, 1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		lookup.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()
	a := New(Config{APIKey: "key", BaseURL: srv.URL})

	res := a.Suspend(context.Background(), "bob@x.io")
	require.False(t, res.Success)
	require.Contains(t, res.Message, "502")
	require.Equal(t, int32(1), atomic.LoadInt32(&puts))
}
