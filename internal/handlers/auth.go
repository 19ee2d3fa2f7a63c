package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sidehustlers/internal/auth"
	"sidehustlers/internal/models"
)

// googleStateCookie holds "state.nonce" between the redirect and callback.
const (
	googleStateCookie = "sh-google-state"
	googleStateTTL    = 10 * time.Minute
)

// Authenticator covers the auth actions that do not need a browser session.
type Authenticator interface {
	GoogleLoginURL() (*auth.GoogleLogin, error)
	SendPasswordReset(ctx context.Context, email string) error
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	AccountType string `json:"accountType" binding:"required,oneof=customer provider"`
}

type GoogleTokenRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func Login(bridge *CookieBridge, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		entry := sessionFrom(c)
		snap, err := entry.Session.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondAuthError(c, logger, err)
			return
		}
		bridge.Sync(c, entry.Client)
		c.JSON(http.StatusOK, newSessionView(snap))
	}
}

func Register(bridge *CookieBridge, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		entry := sessionFrom(c)
		snap, err := entry.Session.Register(c.Request.Context(), auth.RegisterInput{
			Email:       req.Email,
			Password:    req.Password,
			FirstName:   strings.TrimSpace(req.FirstName),
			LastName:    strings.TrimSpace(req.LastName),
			AccountType: models.AccountType(req.AccountType),
		})
		if err != nil {
			respondAuthError(c, logger, err)
			return
		}
		bridge.Sync(c, entry.Client)
		c.JSON(http.StatusCreated, newSessionView(snap))
	}
}

// LoginWithGoogle accepts a Google ID token obtained by a popup sign-in.
func LoginWithGoogle(bridge *CookieBridge, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GoogleTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		entry := sessionFrom(c)
		snap, err := entry.Session.LoginWithGoogle(c.Request.Context(), req.IDToken)
		if err != nil {
			respondAuthError(c, logger, err)
			return
		}
		bridge.Sync(c, entry.Client)
		c.JSON(http.StatusOK, newSessionView(snap))
	}
}

func GoogleRedirect(google Authenticator, cookie CookieConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending, err := google.GoogleLoginURL()
		if err != nil {
			respondAuthError(c, logger, err)
			return
		}

		http.SetCookie(c.Writer, &http.Cookie{
			Name:     googleStateCookie,
			Value:    pending.State + "." + pending.Nonce,
			Path:     "/api/auth/google",
			MaxAge:   int(googleStateTTL / time.Second),
			HttpOnly: true,
			Secure:   cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		c.Redirect(http.StatusFound, pending.URL)
	}
}

// GoogleCallback finishes the redirect sign-in and sends the browser on to
// the page that fits the session, or back to the login page with the code.
func GoogleCallback(bridge *CookieBridge, cookie CookieConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var pending auth.GoogleLogin
		if raw, err := c.Cookie(googleStateCookie); err == nil {
			pending.State, pending.Nonce, _ = strings.Cut(raw, ".")
		}
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     googleStateCookie,
			Path:     "/api/auth/google",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})

		if msg := c.Query("error"); msg != "" {
			logger.Info("google sign-in aborted", zap.String("error", msg))
			c.Redirect(http.StatusFound, "/login?"+url.Values{"error": {"auth/popup-closed-by-user"}}.Encode())
			return
		}

		entry := sessionFrom(c)
		snap, err := entry.Session.CompleteGoogleRedirect(c.Request.Context(), c.Query("code"), c.Query("state"), pending)
		if err != nil {
			code := authErrorCode(err)
			logger.Info("google sign-in failed", zap.String("code", code), zap.Error(err))
			c.Redirect(http.StatusFound, "/login?"+url.Values{"error": {code}}.Encode())
			return
		}
		bridge.Sync(c, entry.Client)

		target := destinationFor(snap)
		if target == "" {
			target = "/"
		}
		c.Redirect(http.StatusFound, target)
	}
}

func Logout(bridge *CookieBridge) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := signedOut
		if entry := sessionFrom(c); entry != nil {
			snap, _ = entry.Session.Logout(c.Request.Context())
		}
		bridge.Clear(c)
		c.JSON(http.StatusOK, newSessionView(snap))
	}
}

// PasswordReset answers the same way whether or not the address exists.
// A known session also records the failure message.
func PasswordReset(authn Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PasswordResetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		send := authn.SendPasswordReset
		if entry := sessionFrom(c); entry != nil {
			send = entry.Session.SendPasswordReset
		}
		if err := send(c.Request.Context(), req.Email); err != nil {
			respondAuthError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Falls ein Konto existiert, wurde eine E-Mail zum Zurücksetzen gesendet."})
	}
}

func RefreshProfile(bridge *CookieBridge, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry := sessionFrom(c)
		if entry == nil {
			c.JSON(http.StatusOK, newSessionView(signedOut))
			return
		}
		snap, err := entry.Session.RefreshProfile(c.Request.Context())
		if err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, "session unavailable", err)
			return
		}
		bridge.Sync(c, entry.Client)
		c.JSON(http.StatusOK, newSessionView(snap))
	}
}

// SessionState reports the session once any in-flight profile fetch is done.
func SessionState(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := settledSnapshot(c)
		if err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, "session unavailable", err)
			return
		}
		c.JSON(http.StatusOK, newSessionView(snap))
	}
}

func ClearError() gin.HandlerFunc {
	return func(c *gin.Context) {
		if entry := sessionFrom(c); entry != nil {
			entry.Session.ClearError()
		}
		snap, _ := settledSnapshot(c)
		c.JSON(http.StatusOK, newSessionView(snap))
	}
}
