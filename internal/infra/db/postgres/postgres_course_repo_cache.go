package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/repository"
	"course-ledger/internal/infra/metrics"
	red "course-ledger/internal/infra/redis"
)

var _ repository.CourseRepository = (*courseRepoCacheDecorator)(nil)

// courseRepoCacheDecorator caches catalog rows in Redis. Only reads outside a
// transaction are served from cache.
type courseRepoCacheDecorator struct {
	inner  repository.CourseRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCourseRepoCacheDecorator(inner repository.CourseRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.CourseRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &courseRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func courseKey(id string) string { return fmt.Sprintf("course:%s", id) }

func (d *courseRepoCacheDecorator) get(ctx context.Context, id string) (*model.Course, bool) {
	val, err := d.cache.Get(ctx, courseKey(id))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn().Err(err).Str("course_id", id).Msg("course cache read failed")
		}
		return nil, false
	}
	var c model.Course
	if json.Unmarshal([]byte(val), &c) != nil {
		return nil, false
	}
	return &c, true
}

func (d *courseRepoCacheDecorator) put(ctx context.Context, c *model.Course) {
	b, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, courseKey(c.ID), b, d.ttl); err != nil {
		d.logger.Warn().Err(err).Str("course_id", c.ID).Msg("course cache write failed")
	}
}

func (d *courseRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	if tx == nil {
		if c, ok := d.get(ctx, id); ok {
			metrics.IncCacheRequest("course", "hit")
			return c, nil
		}
		metrics.IncCacheRequest("course", "miss")
	}
	c, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.put(ctx, c)
	return c, nil
}

func (d *courseRepoCacheDecorator) Categories(ctx context.Context, tx repository.Tx, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	var missing []string
	for _, id := range ids {
		if tx == nil {
			if c, ok := d.get(ctx, id); ok {
				metrics.IncCacheRequest("course_category", "hit")
				out[id] = c.Category
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	metrics.IncCacheRequest("course_category", "miss")
	fetched, err := d.inner.Categories(ctx, tx, missing)
	if err != nil {
		return nil, err
	}
	for id, cat := range fetched {
		out[id] = cat
	}
	return out, nil
}

func (d *courseRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	if err := d.inner.Save(ctx, tx, c); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, courseKey(c.ID))
	return nil
}
