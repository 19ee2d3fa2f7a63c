package jobs

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sidehustlers/internal/models"
)

var (
	ErrNotFound = errors.New("jobs: not found")
	// ErrStatusChanged means the job left the expected status before the
	// update was applied.
	ErrStatusChanged = errors.New("jobs: status changed concurrently")
)

type Store interface {
	ListByProvider(ctx context.Context, providerID string) ([]models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	Create(ctx context.Context, job models.Job) error
	// UpdateStatus moves the job from one status to another and fails with
	// ErrStatusChanged if it is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to models.JobStatus, now time.Time) (*models.Job, error)
}

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("jobs")}
}

func (s *MongoStore) ListByProvider(ctx context.Context, providerID string) ([]models.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"providerId": providerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := []models.Job{}
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&job); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *MongoStore) Create(ctx context.Context, job models.Job) error {
	_, err := s.coll.InsertOne(ctx, job)
	return err
}

func (s *MongoStore) UpdateStatus(ctx context.Context, id string, from, to models.JobStatus, now time.Time) (*models.Job, error) {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updatedAt": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var job models.Job
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrStatusChanged
		}
		return nil, err
	}
	return &job, nil
}

// MemoryStore is used in development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.Job)}
}

func (s *MemoryStore) ListByProvider(_ context.Context, providerID string) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Job{}
	for _, j := range s.jobs {
		if j.ProviderID == providerID {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b models.Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (s *MemoryStore) Create(_ context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to models.JobStatus, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != from {
		return nil, ErrStatusChanged
	}
	j.Status = to
	j.UpdatedAt = now
	s.jobs[id] = j
	return &j, nil
}

var (
	_ Store = (*MongoStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
