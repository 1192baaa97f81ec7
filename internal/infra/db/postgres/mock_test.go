//go:build !integration

package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/repository"
	red "course-ledger/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

type mockInnerCourseRepo struct {
	mu        sync.Mutex
	courses   map[string]*model.Course
	findCalls int
	catCalls  [][]string
}

func newMockInnerCourseRepo(cs ...*model.Course) *mockInnerCourseRepo {
	m := &mockInnerCourseRepo{courses: map[string]*model.Course{}}
	for _, c := range cs {
		m.courses[c.ID] = c
	}
	return m
}

func (m *mockInnerCourseRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	c, ok := m.courses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockInnerCourseRepo) Categories(_ context.Context, _ repository.Tx, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catCalls = append(m.catCalls, append([]string(nil), ids...))
	out := map[string]string{}
	for _, id := range ids {
		if c, ok := m.courses[id]; ok {
			out[id] = c.Category
		}
	}
	return out, nil
}

func (m *mockInnerCourseRepo) Save(_ context.Context, _ repository.Tx, c *model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
	return nil
}

// memRedis is a map-backed RedisClient; expirations are ignored.
type memRedis struct {
	mu   sync.Mutex
	data map[string]string
}

var _ red.RedisClient = (*memRedis)(nil)

func newMemRedis() *memRedis { return &memRedis{data: map[string]string{}} }

func (m *memRedis) Ping(context.Context) error { return nil }

func (m *memRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *memRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	_, exists := m.data[key]
	m.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memRedis) Incr(context.Context, string) (int64, error)             { return 0, nil }
func (m *memRedis) Expire(context.Context, string, time.Duration) error     { return nil }
func (m *memRedis) DelIfEquals(context.Context, string, string) (bool, error) { return false, nil }
func (m *memRedis) Close() error                                            { return nil }

func (m *memRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
