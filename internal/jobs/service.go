package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sidehustlers/internal/models"
)

var ErrInvalidTransition = errors.New("jobs: status transition not allowed")

var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusScheduled:  {models.JobStatusInProgress, models.JobStatusCancelled},
	models.JobStatusInProgress: {models.JobStatusDelivered},
}

func CanTransition(from, to models.JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Labels are the German status names shown on the dashboard.
var Labels = map[models.JobStatus]string{
	models.JobStatusScheduled:  "Geplant",
	models.JobStatusInProgress: "In Bearbeitung",
	models.JobStatusDelivered:  "Geliefert",
	models.JobStatusCompleted:  "Abgeschlossen",
	models.JobStatusCancelled:  "Storniert",
}

type Page struct {
	Jobs  []models.Job `json:"jobs"`
	Total int64        `json:"total"`
	Page  int64        `json:"page"`
	Limit int64        `json:"limit"`
	Stats Stats        `json:"stats"`
}

type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// List returns one page of the provider's jobs. Stats always cover every job
// of the provider.
func (s *Service) List(ctx context.Context, providerID string, q Query) (*Page, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}

	all, err := s.store.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs of %s: %w", providerID, err)
	}

	jobs, total := q.apply(all)
	return &Page{
		Jobs:  jobs,
		Total: total,
		Page:  q.Page,
		Limit: q.Limit,
		Stats: computeStats(all),
	}, nil
}

// UpdateStatus changes the status of a job owned by providerID. Jobs of other
// providers are reported as not found.
func (s *Service) UpdateStatus(ctx context.Context, providerID, jobID string, to models.JobStatus) (*models.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ProviderID != providerID {
		return nil, ErrNotFound
	}
	if !CanTransition(job.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
	}

	updated, err := s.store.UpdateStatus(ctx, jobID, job.Status, to, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("job status updated",
		zap.String("jobId", jobID),
		zap.String("from", string(job.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}
