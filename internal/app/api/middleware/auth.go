package middleware

import (
	"net/http"
	"strings"

	"github.com/epigram-app/entitlement-service/internal/identity"
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// AuthMiddleware enforces bearer token auth and injects the verified identity
// into gin.Context (key: "user_id") and the request's context.Context.
// When no verifier is configured (dev without an IdP), a local identity is
// injected so the API stays usable; X-Debug-User overrides the user id.
func AuthMiddleware(verifier *identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			id := &identity.Identity{UserID: "local-dev", Issuer: "local"}
			if debugUser := c.GetHeader("X-Debug-User"); debugUser != "" {
				id.UserID = debugUser
			}
			attachIdentity(c, id)
			c.Next()
			return
		}

		token, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			respondUnauthorized(c, "missing or malformed authorization header")
			return
		}

		id, err := verifier.Verify(token)
		if err != nil {
			logctx.FromGin(c, zap.NewNop().Sugar()).Infow("auth_failed", "path", c.Request.URL.Path, "err", err)
			respondUnauthorized(c, "invalid token")
			return
		}

		attachIdentity(c, id)
		c.Next()
	}
}

// RequireAdmin allows only user IDs listed in auth.admin_user_ids.
// It must run after AuthMiddleware.
func RequireAdmin(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" || !lo.Contains(cfg.Auth.AdminUserIDs, userID) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeForbidden, "admin access required"))
			return
		}
		c.Next()
	}
}

func attachIdentity(c *gin.Context, id *identity.Identity) {
	c.Set("user_id", id.UserID)

	ctx := identity.WithIdentity(c.Request.Context(), id)
	ctx = logctx.WithUserID(ctx, id.UserID)
	c.Request = c.Request.WithContext(ctx)

	// enrich the request logger so downstream logs carry the user id
	if l, ok := c.Get("logger"); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			c.Set("logger", lg.With("user_id", id.UserID))
		}
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, message))
}
