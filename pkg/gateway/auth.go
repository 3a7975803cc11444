// Package gateway implements the public edge service: API-key
// authentication, request normalization, dispatch to Sentinel, verdict
// translation with explainability headers, usage accounting, and metrics.
package gateway

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clestiq/clestiq/pkg/credentials"
	"github.com/clestiq/clestiq/pkg/models"
)

// APIKeyHeader carries the caller's opaque bearer credential.
const APIKeyHeader = "X-API-Key"

// credentialKey is the gin context key the middleware stores the resolved
// credential under.
const credentialKey = "credential"

// RequireAPIKey authenticates the presented key against the credential
// store: 401 when it is missing or unknown, 403 when it is disabled. The
// resolved credential is stored on the context for the handler.
func RequireAPIKey(store credentials.Store, salt string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Missing API key"})
			return
		}

		cred, err := store.Lookup(c.Request.Context(), credentials.HashKey(key, salt))
		if errors.Is(err, credentials.ErrNotFound) {
			slog.Warn("Unknown API key presented", "key_prefix", credentials.Prefix(key))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid API key"})
			return
		}
		if err != nil {
			slog.Error("Credential lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Detail: "Internal server error"})
			return
		}
		if !cred.Active {
			slog.Warn("Disabled API key presented", "key_prefix", cred.KeyPrefix)
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: "API key disabled"})
			return
		}
		if cred.AppID == "" {
			slog.Warn("API key has no bound application", "key_prefix", cred.KeyPrefix)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid API key"})
			return
		}

		c.Set(credentialKey, cred)
		c.Next()
	}
}

// boundCredential returns the credential the auth middleware resolved.
func boundCredential(c *gin.Context) *credentials.Credential {
	value, ok := c.Get(credentialKey)
	if !ok {
		return nil
	}
	cred, _ := value.(*credentials.Credential)
	return cred
}
