package profile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sidehustlers/internal/models"
)

// CachedStore is a read-through Redis cache in front of another Store.
// Every write drops the cached entry and bumps a per-uid version; a read only
// fills the cache when the version it saw before loading is still current, so
// a fill racing a write cannot put the old profile back. Redis failures fall
// back to the backing store.
type CachedStore struct {
	next   Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// versionTTL outlives any fill still in flight.
const versionTTL = 24 * time.Hour

var errStaleFill = errors.New("profile changed while loading")

func NewCachedStore(next Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(uid string) string {
	return "profile:" + uid
}

func versionKey(uid string) string {
	return "profile:" + uid + ":version"
}

func (s *CachedStore) Get(ctx context.Context, uid string) (models.Profile, error) {
	raw, err := s.rdb.Get(ctx, cacheKey(uid)).Bytes()
	switch {
	case err == nil:
		var doc models.ProfileDocument
		if err := json.Unmarshal(raw, &doc); err == nil {
			if p, err := doc.Profile(); err == nil {
				return p, nil
			}
		}
		s.logger.Warn("dropping unreadable cached profile", zap.String("uid", uid))
		s.invalidate(ctx, uid)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("profile cache read failed", zap.String("uid", uid), zap.Error(err))
	}

	version, verr := s.version(ctx, s.rdb, uid)

	p, err := s.next.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		s.logger.Warn("profile cache version read failed", zap.String("uid", uid), zap.Error(verr))
		return p, nil
	}

	if err := s.fill(ctx, uid, version, p); err != nil && !errors.Is(err, errStaleFill) && !errors.Is(err, redis.TxFailedErr) {
		s.logger.Warn("profile cache write failed", zap.String("uid", uid), zap.Error(err))
	}
	return p, nil
}

// fill stores p unless the profile was written since version was read.
func (s *CachedStore) fill(ctx context.Context, uid string, version int64, p models.Profile) error {
	payload, err := json.Marshal(models.NewProfileDocument(p))
	if err != nil {
		return err
	}

	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.version(ctx, tx, uid)
		if err != nil {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(uid), payload, s.ttl)
			return nil
		})
		return err
	}, versionKey(uid))
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *CachedStore) version(ctx context.Context, c stringGetter, uid string) (int64, error) {
	v, err := c.Get(ctx, versionKey(uid)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (s *CachedStore) Create(ctx context.Context, p models.Profile) error {
	defer s.invalidate(ctx, p.Base().UID)
	return s.next.Create(ctx, p)
}

func (s *CachedStore) Save(ctx context.Context, p models.Profile) error {
	defer s.invalidate(ctx, p.Base().UID)
	return s.next.Save(ctx, p)
}

func (s *CachedStore) Update(ctx context.Context, uid string, patch models.ProfilePatch, now time.Time) (models.Profile, error) {
	defer s.invalidate(ctx, uid)
	return s.next.Update(ctx, uid, patch, now)
}

// Invalidate drops the cached profile, e.g. on logout.
func (s *CachedStore) Invalidate(ctx context.Context, uid string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(uid))
		pipe.Expire(ctx, versionKey(uid), versionTTL)
		pipe.Del(ctx, cacheKey(uid))
		return nil
	})
	return err
}

func (s *CachedStore) invalidate(ctx context.Context, uid string) {
	if err := s.Invalidate(ctx, uid); err != nil {
		s.logger.Warn("profile cache invalidation failed", zap.String("uid", uid), zap.Error(err))
	}
}

var _ Store = (*CachedStore)(nil)
