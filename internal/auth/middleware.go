package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"geoattend/internal/apperr"
	"geoattend/internal/identity"
)

const claimsKey = "claims"

// DeviceVerifier confirms that a device still holds an identity's session.
type DeviceVerifier interface {
	VerifyDevice(ctx context.Context, ref identity.Ref, deviceID string) error
}

func bearer(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(authz[len("bearer "):]), true
}

// Required enforces a valid access token whose device still holds the
// active session. Session state is re-read on every request.
func Required(issuer *Issuer, devices DeviceVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.InvalidCredentials, "message": "missing bearer token"})
			return
		}
		claims, err := issuer.Parse(tokenStr, KindAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.InvalidCredentials, "message": "invalid token"})
			return
		}
		ref, err := claims.Ref()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.InvalidCredentials, "message": "invalid token"})
			return
		}
		if err := devices.VerifyDevice(c.Request.Context(), ref, claims.DeviceID); err != nil {
			status := http.StatusUnauthorized
			if apperr.KindOf(err) == apperr.Internal {
				status = http.StatusInternalServerError
			}
			msg := "device mismatch, please log in again"
			if e, ok := apperr.As(err); ok {
				msg = e.Message
			}
			c.AbortWithStatusJSON(status, gin.H{"error": apperr.KindOf(err), "message": msg})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Optional parses an access token when present without rejecting the request.
func Optional(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr, ok := bearer(c); ok {
			if claims, err := issuer.Parse(tokenStr, KindAccess); err == nil {
				c.Set(claimsKey, claims)
			}
		}
		c.Next()
	}
}

// RequireRole rejects callers whose token carries another role.
func RequireRole(role identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok || claims.Role != string(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperr.Forbidden, "message": string(role) + "s only"})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Required or Optional.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
