package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sidehustlers/internal/models"
)

var base = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	jobs := []models.Job{
		{ID: "j1", ProviderID: "p1", Title: "Fenster putzen", Description: "Altbau", Price: 80, DurationInMin: 120,
			Status: models.JobStatusCompleted, Location: models.Address{City: "Berlin"}, CreatedAt: base},
		{ID: "j2", ProviderID: "p1", Title: "Rasen mähen", Price: 40, DurationInMin: 60,
			Status: models.JobStatusScheduled, Location: models.Address{City: "Potsdam"}, CreatedAt: base.Add(time.Hour)},
		{ID: "j3", ProviderID: "p1", Title: "Umzugshilfe", Description: "3 Zimmer in Berlin", Price: 250, DurationInMin: 300,
			Status: models.JobStatusInProgress, Location: models.Address{City: "Hamburg"}, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "j4", ProviderID: "p1", Title: "Hecke schneiden", Price: 60, DurationInMin: 90,
			Status: models.JobStatusCompleted, Location: models.Address{City: "Berlin"}, CreatedAt: base.Add(3 * time.Hour)},
		{ID: "other", ProviderID: "p2", Title: "Fenster putzen", Price: 999,
			Status: models.JobStatusScheduled, CreatedAt: base},
	}
	for _, j := range jobs {
		require.NoError(t, store.Create(context.Background(), j))
	}
	return NewService(store, zap.NewNop()), store
}

func ids(jobs []models.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestListDefaultsToNewestFirst(t *testing.T) {
	svc, _ := seed(t)

	page, err := svc.List(context.Background(), "p1", Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"j4", "j3", "j2", "j1"}, ids(page.Jobs))
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, int64(1), page.Page)
	assert.Equal(t, int64(defaultLimit), page.Limit)
}

func TestListStatsCoverAllJobs(t *testing.T) {
	svc, _ := seed(t)

	page, err := svc.List(context.Background(), "p1", Query{Status: "scheduled"})
	require.NoError(t, err)
	assert.Equal(t, []string{"j2"}, ids(page.Jobs))
	assert.Equal(t, Stats{Total: 4, Scheduled: 1, InProgress: 1, Completed: 2, TotalEarnings: 140}, page.Stats)
}

func TestListSearch(t *testing.T) {
	svc, _ := seed(t)

	// matches city of j1 and j4, description of j3
	page, err := svc.List(context.Background(), "p1", Query{Search: " BERLIN "})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"j1", "j3", "j4"}, ids(page.Jobs))
}

func TestListSort(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	page, err := svc.List(ctx, "p1", Query{Sort: SortByPrice, Order: Ascending})
	require.NoError(t, err)
	assert.Equal(t, []string{"j2", "j4", "j1", "j3"}, ids(page.Jobs))

	page, err = svc.List(ctx, "p1", Query{Sort: SortByDuration})
	require.NoError(t, err)
	assert.Equal(t, []string{"j3", "j1", "j4", "j2"}, ids(page.Jobs))

	page, err = svc.List(ctx, "p1", Query{Sort: SortByStatus, Order: Ascending})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, page.Jobs[0].Status)
	assert.Equal(t, models.JobStatusScheduled, page.Jobs[3].Status)
}

func TestListPaging(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	page, err := svc.List(ctx, "p1", Query{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, ids(page.Jobs))
	assert.Equal(t, int64(4), page.Total)

	page, err = svc.List(ctx, "p1", Query{Page: 5, Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, page.Jobs)
	assert.NotNil(t, page.Jobs)
}

func TestListRejectsUnknownParameters(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	_, err := svc.List(ctx, "p1", Query{Status: "lost"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = svc.List(ctx, "p1", Query{Sort: "rating"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = svc.List(ctx, "p1", Query{Order: "up"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestUpdateStatus(t *testing.T) {
	svc, store := seed(t)
	ctx := context.Background()

	job, err := svc.UpdateStatus(ctx, "p1", "j2", models.JobStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, job.Status)

	job, err = svc.UpdateStatus(ctx, "p1", "j2", models.JobStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDelivered, job.Status)

	stored, err := store.Get(ctx, "j2")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDelivered, stored.Status)
}

func TestUpdateStatusRejections(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, "p1", "j1", models.JobStatusInProgress)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, "p1", "j2", models.JobStatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, "p1", "other", models.JobStatusInProgress)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateStatus(ctx, "p1", "missing", models.JobStatusInProgress)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	_, store := seed(t)

	_, err := store.UpdateStatus(context.Background(), "j2", models.JobStatusInProgress, models.JobStatusDelivered, base)
	assert.ErrorIs(t, err, ErrStatusChanged)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.JobStatusScheduled, models.JobStatusCancelled))
	assert.False(t, CanTransition(models.JobStatusDelivered, models.JobStatusCompleted))
	assert.False(t, CanTransition(models.JobStatusCancelled, models.JobStatusScheduled))
}
