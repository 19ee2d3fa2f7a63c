package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sidehustlers/internal/identity"
	"sidehustlers/internal/metrics"
	"sidehustlers/internal/middleware"
)

// browsers drop cookies over 4096 bytes including name and attributes
const maxTokenLength = 3800

var errTokenTooLong = errors.New("token exceeds cookie size")

type CookieConfig struct {
	MaxAge time.Duration
	Secure bool
}

// CookieBridge mirrors the current ID token into an HttpOnly cookie so page
// requests can be gated without talking to the identity provider.
type CookieBridge struct {
	config  CookieConfig
	logger  *zap.Logger
	metrics metrics.Recorder
}

func NewCookieBridge(config CookieConfig, logger *zap.Logger, rec metrics.Recorder) *CookieBridge {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &CookieBridge{config: config, logger: logger, metrics: rec}
}

func (b *CookieBridge) Set(c *gin.Context, token string) error {
	if len(token) > maxTokenLength {
		b.metrics.RecordCookieBridgeFailure("set")
		return errTokenTooLong
	}
	b.write(c, middleware.SessionCookie, token, int(b.config.MaxAge/time.Second))
	return nil
}

func (b *CookieBridge) Clear(c *gin.Context) {
	b.write(c, middleware.SessionCookie, "", -1)
}

// Sync writes the client's current token when it differs from the cookie the
// browser sent. Failures are logged and otherwise ignored.
func (b *CookieBridge) Sync(c *gin.Context, client *identity.Client) {
	token := client.IDToken()
	if token == "" {
		return
	}
	if sent, err := c.Cookie(middleware.SessionCookie); err == nil && sent == token {
		return
	}
	if err := b.Set(c, token); err != nil {
		b.logger.Warn("session cookie sync failed", zap.Error(err))
	}
}

func (b *CookieBridge) write(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// SetToken serves POST /api/auth/set-token and POST /api/session.
func SetToken(bridge *CookieBridge, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Token required"})
			return
		}

		if err := bridge.Set(c, strings.TrimSpace(req.Token)); err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, "Failed to set token", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func RemoveToken(bridge *CookieBridge) gin.HandlerFunc {
	return func(c *gin.Context) {
		bridge.Clear(c)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
