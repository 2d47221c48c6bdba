// Package middleware provides HTTP middleware for the pestctl API.
package middleware

import (
	"github.com/gin-gonic/gin"

	"pestctl/internal/core/security"
)

// UserContext resolves the authenticated caller into a security.Actor and
// rejects identities without a usable company scope before any handler runs.
//
// It must run AFTER Auth:
//
//	protected.Use(middleware.Auth(cfg.JWTValidator))
//	protected.Use(middleware.UserContext())
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := security.ActorFromContext(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set("company_id", actor.CompanyID.String())
		c.Set("role", string(actor.Role))
		c.Next()
	}
}
