package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pestctl/internal/core/apperror"
	appctx "pestctl/internal/core/context"
	"pestctl/internal/infrastructure/storage/postgres"
	"pestctl/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const (
	idempotencyKeyCtx   = "idempotency_key"
	idempotencyStoreCtx = "idempotency_store"
)

// IdempotencyStore records request outcomes per (user, key).
// *postgres.IdempotencyStore implements it.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key, userID string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key, userID string, statusCode int, contentType string, response any) error
}

var _ IdempotencyStore = (*postgres.IdempotencyStore)(nil)

// Idempotency middleware replays the stored response of a repeated write.
// Only POST/PUT/PATCH requests carrying X-Idempotency-Key are affected.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		userID := appctx.GetUserID(c.Request.Context())

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		operation := c.Request.Method + " " + c.FullPath()

		replay, err := store.AcquireKey(c.Request.Context(), key, userID, operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
				c.Abort()
				return
			}
			_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(idempotencyKeyCtx, key)
		c.Set(idempotencyStoreCtx, store)
		c.Next()
	}
}

func idempotencyState(c *gin.Context) (string, IdempotencyStore, bool) {
	key, ok := c.Get(idempotencyKeyCtx)
	if !ok {
		return "", nil, false
	}
	v, ok := c.Get(idempotencyStoreCtx)
	if !ok {
		return "", nil, false
	}
	store, ok := v.(IdempotencyStore)
	if !ok || store == nil {
		return "", nil, false
	}
	return key.(string), store, true
}

// CompleteIdempotency stores a successful response for replay. No-op when
// the request carried no idempotency key.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	key, store, ok := idempotencyState(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := store.CompleteKey(ctx, key, appctx.GetUserID(ctx), statusCode, contentType, response); err != nil {
		logger.Warn(ctx, "failed to complete idempotency key", "key", key, "error", err)
	}
}

// failIdempotency stores the error response we return (best-effort).
func failIdempotency(c *gin.Context, statusCode int, body any) {
	key, store, ok := idempotencyState(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := store.FailKey(ctx, key, appctx.GetUserID(ctx), statusCode, "application/json", body); err != nil {
		logger.Warn(ctx, "failed to record idempotency failure", "key", key, "error", err)
	}
}
