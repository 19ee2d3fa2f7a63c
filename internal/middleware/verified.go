package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sidehustlers/internal/identity"
)

const (
	ctxUID      = "uid"
	ctxIdentity = "identity"
)

// VerifiedAuth requires a valid ID token, taken from the Authorization header
// or else the session cookie, and stores the verified identity in the context.
func VerifiedAuth(verifier identity.TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			logger.Debug("invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if raw == "" {
			raw, _ = c.Cookie(SessionCookie)
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		token, err := verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			logger.Info("token validation failed", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id := token.Identity
		c.Set(ctxUID, id.UID)
		c.Set(ctxIdentity, &id)
		c.Next()
	}
}

// bearerToken returns "" with ok=true when no header is sent.
func bearerToken(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	if raw == "" {
		return "", true
	}
	parts := strings.Fields(raw)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func UIDFromContext(c *gin.Context) (string, bool) {
	uid := c.GetString(ctxUID)
	return uid, uid != ""
}

func IdentityFromContext(c *gin.Context) (*identity.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*identity.Identity)
	return id, ok
}
