package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sidehustlers/internal/middleware"
	"sidehustlers/internal/models"
	"sidehustlers/internal/profile"
	"sidehustlers/internal/session"
)

const msgCompleteFailed = "Fehler beim Vervollständigen des Profils"

type ProfileService interface {
	GetProfile(ctx context.Context, uid string) (models.Profile, error)
	CompleteCustomerProfile(ctx context.Context, uid string, in profile.CustomerDetails) (*models.CustomerProfile, error)
	CompleteProviderProfile(ctx context.Context, uid string, in profile.ProviderDetails) (*models.ProviderProfile, error)
	UpdateProfile(ctx context.Context, uid string, patch models.ProfilePatch) (models.Profile, error)
}

func GetProfile(profiles ProfileService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := middleware.UIDFromContext(c)

		p, err := profiles.GetProfile(c.Request.Context(), uid)
		if err != nil {
			respondProfileError(c, logger, err, "Fehler beim Laden des Profils.")
			return
		}
		c.JSON(http.StatusOK, models.NewProfileDocument(p))
	}
}

func UpdateProfile(profiles ProfileService, reg *session.Registry, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := middleware.UIDFromContext(c)

		var patch models.ProfilePatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			respondValidationError(c, err)
			return
		}
		if patch.IsEmpty() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}

		p, err := profiles.UpdateProfile(c.Request.Context(), uid, patch)
		if err != nil {
			respondProfileError(c, logger, err, "Fehler beim Aktualisieren des Profils")
			return
		}
		refreshBrowserSession(c, reg, uid, logger)
		c.JSON(http.StatusOK, models.NewProfileDocument(p))
	}
}

func CompleteCustomerProfile(profiles ProfileService, reg *session.Registry, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := middleware.UIDFromContext(c)

		var req profile.CustomerDetails
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		p, err := profiles.CompleteCustomerProfile(c.Request.Context(), uid, req)
		if err != nil {
			respondProfileError(c, logger, err, msgCompleteFailed)
			return
		}
		refreshBrowserSession(c, reg, uid, logger)
		c.JSON(http.StatusOK, gin.H{
			"profile":  models.NewProfileDocument(p),
			"redirect": dashboardFor(models.AccountTypeCustomer),
		})
	}
}

func CompleteProviderProfile(profiles ProfileService, reg *session.Registry, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := middleware.UIDFromContext(c)

		var req profile.ProviderDetails
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		p, err := profiles.CompleteProviderProfile(c.Request.Context(), uid, req)
		if err != nil {
			respondProfileError(c, logger, err, msgCompleteFailed)
			return
		}
		refreshBrowserSession(c, reg, uid, logger)
		c.JSON(http.StatusOK, gin.H{
			"profile":  models.NewProfileDocument(p),
			"redirect": dashboardFor(models.AccountTypeProvider),
		})
	}
}

func respondProfileError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	var validationErr *profile.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondValidationError(c, err)
	case errors.Is(err, profile.ErrNotFound):
		respondWithError(c, logger, http.StatusNotFound, "Profil nicht gefunden.", err)
	case errors.Is(err, profile.ErrAccountTypeMismatch), errors.Is(err, profile.ErrConflict):
		respondWithError(c, logger, http.StatusConflict, "Das Profil passt nicht zum Kontotyp.", err)
	case errors.Is(err, models.ErrPatchNotApplicable):
		respondWithError(c, logger, http.StatusUnprocessableEntity, "Diese Felder gelten nicht für diesen Kontotyp.", err)
	default:
		respondWithError(c, logger, http.StatusInternalServerError, fallback, err)
	}
}

// refreshBrowserSession re-reads the profile into the caller's browser session
// when that session belongs to uid. Failures only cost freshness.
func refreshBrowserSession(c *gin.Context, reg *session.Registry, uid string, logger *zap.Logger) {
	if reg == nil {
		return
	}
	id, err := c.Cookie(session.CookieName)
	if err != nil {
		return
	}
	entry, ok := reg.Get(id)
	if !ok {
		return
	}
	if current := entry.Client.Current(); current == nil || current.UID != uid {
		return
	}
	if _, err := entry.Session.RefreshProfile(c.Request.Context()); err != nil {
		logger.Warn("session refresh after profile change failed", zap.String("uid", uid), zap.Error(err))
	}
}
