package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

type backend interface {
	TasksByBoard(ctx context.Context, boardID int64) ([]domain.Task, error)
	CreateTask(ctx context.Context, boardID int64, title, description string, status domain.TaskStatus) (domain.Task, error)
	TaskByID(ctx context.Context, id int64) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// Cache wraps a Storage instance with Redis-backed caching of per-board task
// lists. Any task mutation evicts the affected board.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base *Storage, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	c := newTaskCache(base, client, ttl)
	c.Storage = base
	return c
}

func newTaskCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
}

func (c *Cache) TasksByBoard(ctx context.Context, boardID int64) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, boardID); ok {
		return tasks, nil
	}

	tasks, err := c.base.TasksByBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, boardID, tasks)
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, boardID int64, title, description string, status domain.TaskStatus) (domain.Task, error) {
	t, err := c.base.CreateTask(ctx, boardID, title, description, status)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, t.BoardID)
	return t, nil
}

func (c *Cache) TaskByID(ctx context.Context, id int64) (domain.Task, error) {
	return c.base.TaskByID(ctx, id)
}

func (c *Cache) UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error) {
	t, err := c.base.UpdateTask(ctx, id, upd)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, t.BoardID)
	return t, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id int64) error {
	t, err := c.base.TaskByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, t.BoardID)
	return nil
}

func (c *Cache) loadTasksFromCache(ctx context.Context, boardID int64) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(boardID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(boardID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, boardID int64, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(boardID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, boardID int64) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(boardID)).Result()
}

func tasksCacheKey(boardID int64) string {
	return "tasks:" + strconv.FormatInt(boardID, 10)
}
