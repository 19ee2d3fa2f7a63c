package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sidehustlers/internal/models"
	"sidehustlers/internal/session"
)

// CompleteProfilePage lets only signed-in users with an incomplete profile
// see the completion form.
func CompleteProfilePage(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := settledSession(c, logger)
		if !ok {
			return
		}

		switch {
		case snap.Identity == nil:
			redirectToLogin(c)
		case snap.State == session.StateLoggedInComplete:
			c.Redirect(http.StatusTemporaryRedirect, destinationFor(snap))
		default:
			view := newSessionView(snap)
			view.Redirect = ""
			c.JSON(http.StatusOK, gin.H{
				"session": view,
				"defaults": gin.H{
					"workingHours": models.WorkingHours{Start: "09:00", End: "17:00"},
				},
			})
		}
	}
}

// DashboardPage serves the dashboard of one account type and sends every
// other session to the page it belongs on.
func DashboardPage(accountType models.AccountType, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := settledSession(c, logger)
		if !ok {
			return
		}

		switch {
		case snap.Identity == nil:
			redirectToLogin(c)
		case snap.State == session.StateLoggedInIncomplete:
			c.Redirect(http.StatusTemporaryRedirect, "/complete-profile")
		case snap.State == session.StateLoggedInComplete && snap.Profile.Base().AccountType != accountType:
			c.Redirect(http.StatusTemporaryRedirect, dashboardFor(snap.Profile.Base().AccountType))
		case snap.State == session.StateLoggedInComplete:
			c.JSON(http.StatusOK, newSessionView(snap))
		default:
			// profile missing or unreadable: render the error, do not log out
			c.JSON(http.StatusOK, newSessionView(snap))
		}
	}
}

func settledSession(c *gin.Context, logger *zap.Logger) (session.Snapshot, bool) {
	snap, err := settledSnapshot(c)
	if err != nil {
		respondWithError(c, logger, http.StatusServiceUnavailable, "session unavailable", err)
		return snap, false
	}
	return snap, true
}

func redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, "/login?"+url.Values{"callback": {c.Request.URL.RequestURI()}}.Encode())
}
