package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"sidehustlers/internal/database"
	"sidehustlers/internal/models"
)

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })

	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "27017")
	require.NoError(t, err)

	client, err := database.Connect(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("sidehustlers_test")
	require.NoError(t, database.EnsureJobIndexes(db, zap.NewNop()))
	store := NewMongoStore(db)

	for i, status := range []models.JobStatus{models.JobStatusScheduled, models.JobStatusCompleted} {
		require.NoError(t, store.Create(ctx, models.Job{
			ID:         fmt.Sprintf("job-%d", i),
			ProviderID: "p1",
			Title:      "Auftrag",
			Price:      50,
			Status:     status,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := store.ListByProvider(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "job-1", all[0].ID)

	updated, err := store.UpdateStatus(ctx, "job-0", models.JobStatusScheduled, models.JobStatusInProgress, base)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, updated.Status)

	_, err = store.UpdateStatus(ctx, "job-0", models.JobStatusScheduled, models.JobStatusCancelled, base)
	assert.ErrorIs(t, err, ErrStatusChanged)

	_, err = store.UpdateStatus(ctx, "missing", models.JobStatusScheduled, models.JobStatusCancelled, base)
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := store.ListByProvider(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
