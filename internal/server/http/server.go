// Package httpapi exposes the sync core and access actions over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/authctx"
	"github.com/and161185/access-sync/internal/convert"
	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/service"
)

// Syncer accepts or rejects sync runs.
type Syncer interface {
	TriggerAs(ctx context.Context, actor string, names []string) error
	JobNames() []string
}

// StatusSource returns the job registry snapshot.
type StatusSource interface {
	All(ctx context.Context) ([]model.SyncJob, error)
}

// Handler serves the HTTP API.
type Handler struct {
	Sync           Syncer
	Jobs           StatusSource
	Access         service.AccessService
	StreamInterval time.Duration
	Log            *zap.Logger
}

// NewRouter wires routes and middleware. An empty key disables authentication.
func NewRouter(h *Handler, key []byte) *gin.Engine {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	if h.StreamInterval <= 0 {
		h.StreamInterval = 2 * time.Second
	}

	r := gin.New()
	r.Use(RecoverJSON(h.Log), RequestLogger(h.Log))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api", Auth(key, h.Log))
	api.POST("/sync/trigger", h.Trigger)
	api.GET("/sync/status", h.Status)
	api.GET("/sync/status/stream", h.StatusStream)
	api.GET("/platforms/:platform/users/:email/status", h.CheckStatus)
	api.POST("/platforms/:platform/users/:email/suspend", h.Suspend)
	api.GET("/employees/:id/accounts", h.Accounts)
	return r
}

func splitJobs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Trigger starts a run in the background: 202 when accepted, 409 when busy.
func (h *Handler) Trigger(c *gin.Context) {
	names := splitJobs(c.Query("jobs"))
	if err := h.Sync.TriggerAs(c.Request.Context(), operator(c), names); err != nil {
		writeError(c, h.Log, err)
		return
	}
	if len(names) == 0 {
		names = h.Sync.JobNames()
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sync started", "jobs": names})
}

// Status returns every registered job.
func (h *Handler) Status(c *gin.Context) {
	jobs, err := h.Jobs.All(c.Request.Context())
	if err != nil {
		writeError(c, h.Log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToJobViews(jobs))
}

func platformParam(c *gin.Context) (model.Platform, bool) {
	p, ok := model.ParsePlatform(c.Param("platform"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform"})
	}
	return p, ok
}

// CheckStatus looks a single user up on a platform.
func (h *Handler) CheckStatus(c *gin.Context) {
	p, ok := platformParam(c)
	if !ok {
		return
	}
	res, err := h.Access.CheckStatus(c.Request.Context(), p, c.Param("email"))
	if err != nil {
		writeError(c, h.Log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToStatusView(res))
}

// Suspend suspends a user on a platform. A failed attempt is still a 200 with success=false.
func (h *Handler) Suspend(c *gin.Context) {
	p, ok := platformParam(c)
	if !ok {
		return
	}
	email := c.Param("email")
	res, err := h.Access.Suspend(c.Request.Context(), operator(c), p, email)
	if err != nil {
		writeError(c, h.Log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToSuspendView(p, email, res))
}

// Accounts lists an employee's unified accounts.
func (h *Handler) Accounts(c *gin.Context) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid employee id"})
		return
	}
	accounts, err := h.Access.Accounts(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.Log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAccountViews(accounts))
}

func operator(c *gin.Context) string {
	op, _ := authctx.OperatorFromCtx(c.Request.Context())
	return op
}
