package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

type stubBackend struct {
	tasksByBoardFn func(ctx context.Context, boardID int64) ([]domain.Task, error)
	createTaskFn   func(ctx context.Context, boardID int64, title, description string, status domain.TaskStatus) (domain.Task, error)
	taskByIDFn     func(ctx context.Context, id int64) (domain.Task, error)
	updateTaskFn   func(ctx context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error)
	deleteTaskFn   func(ctx context.Context, id int64) error
}

func (s *stubBackend) TasksByBoard(ctx context.Context, boardID int64) ([]domain.Task, error) {
	if s.tasksByBoardFn == nil {
		return nil, errors.New("unexpected TasksByBoard call")
	}
	return s.tasksByBoardFn(ctx, boardID)
}

func (s *stubBackend) CreateTask(ctx context.Context, boardID int64, title, description string, status domain.TaskStatus) (domain.Task, error) {
	if s.createTaskFn == nil {
		return domain.Task{}, errors.New("unexpected CreateTask call")
	}
	return s.createTaskFn(ctx, boardID, title, description, status)
}

func (s *stubBackend) TaskByID(ctx context.Context, id int64) (domain.Task, error) {
	if s.taskByIDFn == nil {
		return domain.Task{}, errors.New("unexpected TaskByID call")
	}
	return s.taskByIDFn(ctx, id)
}

func (s *stubBackend) UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error) {
	if s.updateTaskFn == nil {
		return domain.Task{}, errors.New("unexpected UpdateTask call")
	}
	return s.updateTaskFn(ctx, id, upd)
}

func (s *stubBackend) DeleteTask(ctx context.Context, id int64) error {
	if s.deleteTaskFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteTaskFn(ctx, id)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheTasksByBoardMissThenHit(t *testing.T) {
	_, client := newTestRedis(t)

	ctx := context.Background()
	expected := []domain.Task{{ID: 1, BoardID: 7, Title: "Write code", Status: domain.StatusTodo}}

	var calls int
	cache := newTaskCache(&stubBackend{
		tasksByBoardFn: func(ctx context.Context, boardID int64) ([]domain.Task, error) {
			calls++
			return expected, nil
		},
	}, client, time.Minute)

	for i := 0; i < 2; i++ {
		tasks, err := cache.TasksByBoard(ctx, 7)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if !reflect.DeepEqual(tasks, expected) {
			t.Fatalf("fetch %d: unexpected tasks %+v", i, tasks)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one backend call, got %d", calls)
	}
}

func TestCacheEvictsOnUpdate(t *testing.T) {
	mr, client := newTestRedis(t)

	ctx := context.Background()
	task := domain.Task{ID: 1, BoardID: 7, Title: "T1", Status: domain.StatusTodo}

	cache := newTaskCache(&stubBackend{
		tasksByBoardFn: func(ctx context.Context, boardID int64) ([]domain.Task, error) {
			return []domain.Task{task}, nil
		},
		updateTaskFn: func(ctx context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error) {
			task.Status = upd.Status
			return task, nil
		},
	}, client, time.Minute)

	if _, err := cache.TasksByBoard(ctx, 7); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if !mr.Exists("tasks:7") {
		t.Fatal("expected cache entry after fetch")
	}

	if _, err := cache.UpdateTask(ctx, 1, domain.StatusUpdate(domain.StatusDone)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if mr.Exists("tasks:7") {
		t.Fatal("expected cache entry evicted after update")
	}
}

func TestCacheEvictsOnCreateAndDelete(t *testing.T) {
	mr, client := newTestRedis(t)

	ctx := context.Background()
	task := domain.Task{ID: 1, BoardID: 7, Title: "T1", Status: domain.StatusTodo}

	cache := newTaskCache(&stubBackend{
		tasksByBoardFn: func(ctx context.Context, boardID int64) ([]domain.Task, error) {
			return []domain.Task{task}, nil
		},
		createTaskFn: func(ctx context.Context, boardID int64, title, description string, status domain.TaskStatus) (domain.Task, error) {
			return domain.Task{ID: 2, BoardID: boardID, Title: title, Status: status}, nil
		},
		taskByIDFn: func(ctx context.Context, id int64) (domain.Task, error) {
			return task, nil
		},
		deleteTaskFn: func(ctx context.Context, id int64) error {
			return nil
		},
	}, client, time.Minute)

	if _, err := cache.TasksByBoard(ctx, 7); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := cache.CreateTask(ctx, 7, "T2", "", domain.StatusTodo); err != nil {
		t.Fatalf("create: %v", err)
	}
	if mr.Exists("tasks:7") {
		t.Fatal("expected cache entry evicted after create")
	}

	if _, err := cache.TasksByBoard(ctx, 7); err != nil {
		t.Fatalf("re-prime cache: %v", err)
	}
	if err := cache.DeleteTask(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("tasks:7") {
		t.Fatal("expected cache entry evicted after delete")
	}
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	ctx := context.Background()
	expected := []domain.Task{{ID: 1, BoardID: 7, Title: "T1", Status: domain.StatusTodo}}

	var calls int
	cache := newTaskCache(&stubBackend{
		tasksByBoardFn: func(ctx context.Context, boardID int64) ([]domain.Task, error) {
			calls++
			return expected, nil
		},
	}, client, time.Minute)

	for i := 0; i < 2; i++ {
		tasks, err := cache.TasksByBoard(ctx, 7)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if !reflect.DeepEqual(tasks, expected) {
			t.Fatalf("fetch %d: unexpected tasks %+v", i, tasks)
		}
	}
	if calls != 2 {
		t.Fatalf("expected backend call per fetch with redis down, got %d", calls)
	}
}

func TestCacheErrorsPassThrough(t *testing.T) {
	_, client := newTestRedis(t)

	ctx := context.Background()
	backendErr := errors.New("disk on fire")
	cache := newTaskCache(&stubBackend{
		tasksByBoardFn: func(ctx context.Context, boardID int64) ([]domain.Task, error) {
			return nil, backendErr
		},
		updateTaskFn: func(ctx context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error) {
			return domain.Task{}, backendErr
		},
	}, client, time.Minute)

	if _, err := cache.TasksByBoard(ctx, 7); !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if _, err := cache.UpdateTask(ctx, 1, domain.StatusUpdate(domain.StatusDone)); !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestNewCachePromotesStorageMethods(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewCache(newTestStorage(t), client, time.Minute)

	ctx := context.Background()
	if err := cache.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	hash := "not-a-real-hash"
	user, err := cache.CreateUser(ctx, "c@x.com", &hash, nil, "Cara")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	board, err := cache.CreateBoard(ctx, user.ID, "Challenges", domain.BoardChallenges)
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	task, err := cache.CreateTask(ctx, board.ID, "T1", "", domain.StatusTodo)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	tasks, err := cache.TasksByBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}
