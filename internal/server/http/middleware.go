package httpapi

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/authctx"
	"github.com/and161185/access-sync/internal/errs"
)

// AnonymousOperator is recorded as the actor when authentication is disabled.
const AnonymousOperator = "anonymous"

// Auth verifies "Authorization: Bearer <JWT>" and stores the subject as the operator.
func Auth(key []byte, log *zap.Logger) gin.HandlerFunc {
	if len(key) == 0 {
		log.Warn("JWT_KEY is empty, HTTP API is unauthenticated")
		return func(c *gin.Context) {
			c.Request = c.Request.WithContext(authctx.WithOperator(c.Request.Context(), AnonymousOperator))
			c.Next()
		}
	}
	return func(c *gin.Context) {
		tok, err := authctx.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, log, errs.ErrUnauthorized)
			c.Abort()
			return
		}
		op, err := authctx.ParseOperator(tok, key)
		if err != nil {
			writeError(c, log, err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(authctx.WithOperator(c.Request.Context(), op))
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("operator", operator(c)),
		)
	}
}

// RecoverJSON turns handler panics into a 500 without leaking the reason.
func RecoverJSON(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnknownJob), errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrPlatformNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	c.JSON(code, gin.H{"error": msg})
}
