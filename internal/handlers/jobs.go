package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sidehustlers/internal/jobs"
	"sidehustlers/internal/middleware"
	"sidehustlers/internal/models"
	"sidehustlers/internal/profile"
)

type jobStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// RequireProvider lets only users with a completed provider profile through.
func RequireProvider(profiles ProfileService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := middleware.UIDFromContext(c)
		p, err := profiles.GetProfile(c.Request.Context(), uid)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				respondWithError(c, logger, http.StatusForbidden, "forbidden", err)
				return
			}
			respondWithError(c, logger, http.StatusInternalServerError, "Fehler beim Laden des Profils.", err)
			return
		}
		if _, ok := p.(*models.ProviderProfile); !ok {
			respondWithError(c, logger, http.StatusForbidden, "forbidden", nil)
			return
		}
		c.Next()
	}
}

func ListProviderJobs(svc *jobs.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := middleware.UIDFromContext(c)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, logger, http.StatusBadRequest, err.Error(), nil)
			return
		}

		result, err := svc.List(c.Request.Context(), uid, jobs.Query{
			Status: c.Query("status"),
			Search: c.Query("q"),
			Sort:   jobs.SortField(c.Query("sort")),
			Order:  jobs.SortOrder(c.Query("order")),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			if errors.Is(err, jobs.ErrInvalidQuery) {
				respondWithError(c, logger, http.StatusBadRequest, "invalid query params", err)
				return
			}
			respondWithError(c, logger, http.StatusInternalServerError, "Fehler beim Laden der Aufträge", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": result.Jobs,
			"pagination": gin.H{
				"page":  result.Page,
				"limit": result.Limit,
				"total": result.Total,
			},
			"stats":  result.Stats,
			"labels": jobs.Labels,
		})
	}
}

func UpdateJobStatus(svc *jobs.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := middleware.UIDFromContext(c)

		var req jobStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		status := models.JobStatus(req.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": []string{"status is invalid"}})
			return
		}

		job, err := svc.UpdateStatus(c.Request.Context(), uid, c.Param("id"), status)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"job": job, "label": jobs.Labels[job.Status]})
		case errors.Is(err, jobs.ErrNotFound):
			respondWithError(c, logger, http.StatusNotFound, "job not found", err)
		case errors.Is(err, jobs.ErrInvalidTransition), errors.Is(err, jobs.ErrStatusChanged):
			respondWithError(c, logger, http.StatusConflict, "Fehler beim Aktualisieren des Job-Status", err)
		default:
			respondWithError(c, logger, http.StatusInternalServerError, "Fehler beim Aktualisieren des Job-Status", err)
		}
	}
}
