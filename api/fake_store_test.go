package api

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"kanban-api/domain"
)

// fakeStore is an in-memory Store used by handler tests. It mirrors the
// validation behavior of the sqlite storage.
type fakeStore struct {
	mu      sync.Mutex
	users   []domain.User
	boards  []domain.Board
	tasks   []domain.Task
	pingErr error
}

func (f *fakeStore) Ping(_ context.Context) error {
	return f.pingErr
}

func (f *fakeStore) CreateUser(_ context.Context, email string, passwordHash, externalID *string, name string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, fmt.Errorf("%w: email must not be empty", domain.ErrValidation)
	}
	if passwordHash == nil && externalID == nil {
		return domain.User{}, fmt.Errorf("%w: either a password or an external identity is required", domain.ErrValidation)
	}
	for _, u := range f.users {
		if u.Email == email {
			return domain.User{}, fmt.Errorf("%w: user", domain.ErrDuplicate)
		}
		if externalID != nil && u.ExternalID != nil && *u.ExternalID == *externalID {
			return domain.User{}, fmt.Errorf("%w: user", domain.ErrDuplicate)
		}
	}
	u := domain.User{
		ID:           int64(len(f.users) + 1),
		Email:        email,
		PasswordHash: passwordHash,
		ExternalID:   externalID,
		Name:         name,
	}
	f.users = append(f.users, u)
	return u, nil
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("%w: user", domain.ErrNotFound)
}

func (f *fakeStore) UserByExternalID(_ context.Context, externalID string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("%w: user", domain.ErrNotFound)
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("%w: user", domain.ErrNotFound)
}

func (f *fakeStore) CreateBoard(_ context.Context, ownerID int64, name string, boardType domain.BoardType) (domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return domain.Board{}, fmt.Errorf("%w: board name must not be empty", domain.ErrValidation)
	}
	if !boardType.Valid() {
		return domain.Board{}, fmt.Errorf("%w: invalid board type %q", domain.ErrValidation, boardType)
	}
	b := domain.Board{
		ID:     int64(len(f.boards) + 1),
		Name:   strings.TrimSpace(name),
		Type:   boardType,
		UserID: ownerID,
	}
	f.boards = append(f.boards, b)
	return b, nil
}

func (f *fakeStore) BoardsByOwner(_ context.Context, ownerID int64) ([]domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	boards := []domain.Board{}
	for _, b := range f.boards {
		if b.UserID == ownerID {
			boards = append(boards, b)
		}
	}
	return boards, nil
}

func (f *fakeStore) BoardByID(_ context.Context, id int64) (domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.boards {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Board{}, fmt.Errorf("%w: board", domain.ErrNotFound)
}

func (f *fakeStore) CreateTask(_ context.Context, boardID int64, title, description string, status domain.TaskStatus) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(title) == "" {
		return domain.Task{}, fmt.Errorf("%w: task title must not be empty", domain.ErrValidation)
	}
	if status == "" {
		status = domain.StatusTodo
	}
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}
	found := false
	for _, b := range f.boards {
		if b.ID == boardID {
			found = true
			break
		}
	}
	if !found {
		return domain.Task{}, fmt.Errorf("%w: board", domain.ErrNotFound)
	}
	t := domain.Task{
		ID:          int64(len(f.tasks) + 1),
		BoardID:     boardID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Status:      status,
		Position:    f.nextPositionLocked(boardID, status),
	}
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeStore) nextPositionLocked(boardID int64, status domain.TaskStatus) int64 {
	var pos int64
	for _, t := range f.tasks {
		if t.BoardID == boardID && t.Status == status && t.Position >= pos {
			pos = t.Position + 1
		}
	}
	return pos
}

func (f *fakeStore) TasksByBoard(_ context.Context, boardID int64) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tasks := []domain.Task{}
	for _, t := range f.tasks {
		if t.BoardID == boardID {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (f *fakeStore) TaskByID(_ context.Context, id int64) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, fmt.Errorf("%w: task", domain.ErrNotFound)
}

func (f *fakeStore) UpdateTask(_ context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error) {
	if err := upd.Validate(); err != nil {
		return domain.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID != id {
			continue
		}
		if upd.IsFull() {
			t.Title = strings.TrimSpace(upd.Title)
			t.Description = strings.TrimSpace(upd.Description)
		}
		if upd.Status != t.Status {
			t.Position = f.nextPositionLocked(t.BoardID, upd.Status)
		}
		t.Status = upd.Status
		f.tasks[i] = t
		return t, nil
	}
	return domain.Task{}, fmt.Errorf("%w: task", domain.ErrNotFound)
}

func (f *fakeStore) DeleteTask(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: task", domain.ErrNotFound)
}
