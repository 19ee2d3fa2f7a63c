package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"sidehustlers/internal/metrics"
)

// SessionCookie carries the raw identity token for coarse page gating.
const SessionCookie = "firebase-auth-token"

type GuardConfig struct {
	LoginPath string
	Bypass    []string
	Public    []string
	Protected []string
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		LoginPath: "/login",
		Bypass:    []string{"/_next", "/favicon", "/api"},
		Public:    []string{"/", "/login", "/register", "/services"},
		Protected: []string{"/dashboard", "/account", "/orders", "/chat", "/admin"},
	}
}

// RouteGuard redirects requests for protected pages to the login page when no
// session cookie is present. Only presence is checked, so an empty value
// passes. It is not an authorization boundary; API routes use VerifiedAuth.
func RouteGuard(cfg GuardConfig, rec metrics.Recorder) gin.HandlerFunc {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if hasAnyPrefix(path, cfg.Bypass) || matchesAny(path, cfg.Public) || !matchesAny(path, cfg.Protected) {
			c.Next()
			return
		}

		if _, err := c.Cookie(SessionCookie); err == nil {
			c.Next()
			return
		}

		rec.RecordGuardRedirect()
		c.Redirect(http.StatusTemporaryRedirect, loginTarget(cfg.LoginPath, c.Request.URL))
		c.Abort()
	}
}

// loginTarget keeps the request's query and sets callback to the original
// path and query.
func loginTarget(loginPath string, requested *url.URL) string {
	q := requested.Query()
	q.Set("callback", requested.RequestURI())
	return loginPath + "?" + q.Encode()
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// matchesAny matches whole path segments: "/chat" covers "/chat/42" but not
// "/chatter". "/" only matches the root itself.
func matchesAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p {
			return true
		}
		if p != "/" && strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
