package main

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/and161185/access-sync/internal/convert"
	"github.com/and161185/access-sync/internal/platform/httpx"
)

// apiClient talks to the sync service HTTP API.
type apiClient struct {
	base  string
	token string
	http  *httpx.Client
}

func newAPIClient(base, token string) *apiClient {
	base = strings.TrimRight(base, "/")
	return &apiClient{
		base:  base,
		token: token,
		http: httpx.New(httpx.Options{
			BaseURL:   base,
			UserAgent: "gov/" + version,
			Auth: func(req *http.Request) {
				if token != "" {
					req.Header.Set("Authorization", "Bearer "+token)
				}
			},
		}),
	}
}

type triggerResponse struct {
	Message string   `json:"message"`
	Jobs    []string `json:"jobs"`
}

func (c *apiClient) Trigger(ctx context.Context, jobs string) (triggerResponse, error) {
	var q url.Values
	if strings.TrimSpace(jobs) != "" {
		q = url.Values{"jobs": {jobs}}
	}
	var out triggerResponse
	err := c.http.Do(ctx, http.MethodPost, "/api/sync/trigger", q, nil, &out)
	return out, err
}

func (c *apiClient) Status(ctx context.Context) ([]convert.JobView, error) {
	var out []convert.JobView
	err := c.http.GetJSON(ctx, "/api/sync/status", nil, &out)
	return out, err
}

func userPath(platform, email, action string) string {
	return "/api/platforms/" + url.PathEscape(platform) + "/users/" + url.PathEscape(email) + "/" + action
}

func (c *apiClient) Check(ctx context.Context, platform, email string) (convert.StatusView, error) {
	var out convert.StatusView
	err := c.http.GetJSON(ctx, userPath(platform, email, "status"), nil, &out)
	return out, err
}

func (c *apiClient) Suspend(ctx context.Context, platform, email string) (convert.SuspendView, error) {
	var out convert.SuspendView
	err := c.http.Do(ctx, http.MethodPost, userPath(platform, email, "suspend"), nil, nil, &out)
	return out, err
}

func (c *apiClient) Accounts(ctx context.Context, employeeID string) ([]convert.AccountView, error) {
	var out []convert.AccountView
	err := c.http.GetJSON(ctx, "/api/employees/"+url.PathEscape(employeeID)+"/accounts", nil, &out)
	return out, err
}

// Watch reads status snapshots from the websocket stream until ctx ends or fn returns false.
func (c *apiClient) Watch(ctx context.Context, fn func([]convert.JobView) bool) error {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/api/sync/status/stream"
	opts := &websocket.DialOptions{}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}
	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	for {
		var snap []convert.JobView
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			return err
		}
		if !fn(snap) {
			return conn.Close(websocket.StatusNormalClosure, "")
		}
	}
}
