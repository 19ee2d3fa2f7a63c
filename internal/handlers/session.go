package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sidehustlers/internal/identity"
	"sidehustlers/internal/models"
	"sidehustlers/internal/session"
)

const ctxSession = "session"

// SessionMiddleware attaches the browser's session, creating one when the
// sh-session cookie is missing or unknown. Only routes that sign a user in
// use it; everything else uses KnownSession.
func SessionMiddleware(reg *session.Registry, bridge *CookieBridge, cookie CookieConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(session.CookieName)
		entry, created, err := reg.GetOrCreate(id)
		if errors.Is(err, session.ErrRegistryFull) {
			c.Header("Retry-After", "60")
			respondWithError(c, logger, http.StatusServiceUnavailable, "session unavailable", err)
			return
		}
		if err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, "internal server error", err)
			return
		}
		if created {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     session.CookieName,
				Value:    entry.ID,
				Path:     "/",
				MaxAge:   int(cookie.MaxAge / time.Second),
				HttpOnly: true,
				Secure:   cookie.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		bridge.Sync(c, entry.Client)
		c.Set(ctxSession, entry)
		c.Next()
	}
}

// KnownSession attaches the browser's session when the registry knows it and
// re-syncs the token cookie in case a background refresh replaced the token.
// Unknown browsers pass through without a session and are treated as signed
// out.
func KnownSession(reg *session.Registry, bridge *CookieBridge) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(session.CookieName)
		if entry, ok := reg.Get(id); ok {
			bridge.Sync(c, entry.Client)
			c.Set(ctxSession, entry)
		}
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *session.Entry {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	entry, _ := v.(*session.Entry)
	return entry
}

// signedOut is reported for browsers without a live session.
var signedOut = session.Snapshot{State: session.StateLoggedOut}

// settledSnapshot waits for the session's in-flight profile fetch.
func settledSnapshot(c *gin.Context) (session.Snapshot, error) {
	entry := sessionFrom(c)
	if entry == nil {
		return signedOut, nil
	}
	return entry.Session.Settled(c.Request.Context())
}

type sessionView struct {
	State             session.State           `json:"state"`
	Identity          *identity.Identity      `json:"identity"`
	Profile           *models.ProfileDocument `json:"profile"`
	IsProfileComplete bool                    `json:"isProfileComplete"`
	Loading           bool                    `json:"loading"`
	Error             string                  `json:"error,omitempty"`
	Redirect          string                  `json:"redirect,omitempty"`
}

func newSessionView(snap session.Snapshot) sessionView {
	view := sessionView{
		State:             snap.State,
		Identity:          snap.Identity,
		IsProfileComplete: snap.IsProfileComplete(),
		Loading:           snap.Loading,
		Error:             snap.Err,
		Redirect:          destinationFor(snap),
	}
	if snap.Profile != nil {
		doc := models.NewProfileDocument(snap.Profile)
		view.Profile = &doc
	}
	return view
}

// destinationFor is the page a session belongs on. Sessions still loading or
// in the error state stay where they are.
func destinationFor(snap session.Snapshot) string {
	if snap.Identity == nil {
		return "/login"
	}
	switch snap.State {
	case session.StateLoggedInIncomplete:
		return "/complete-profile"
	case session.StateLoggedInComplete:
		return dashboardFor(snap.Profile.Base().AccountType)
	}
	return ""
}

func dashboardFor(accountType models.AccountType) string {
	if accountType == models.AccountTypeProvider {
		return "/dashboard/provider"
	}
	return "/dashboard/customer"
}
