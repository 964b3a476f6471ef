package api

import (
	"context"

	"kanban-api/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, email string, passwordHash, externalID *string, name string) (domain.User, error)
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	UserByExternalID(ctx context.Context, externalID string) (domain.User, error)
	UserByID(ctx context.Context, id int64) (domain.User, error)

	CreateBoard(ctx context.Context, ownerID int64, name string, boardType domain.BoardType) (domain.Board, error)
	BoardsByOwner(ctx context.Context, ownerID int64) ([]domain.Board, error)
	BoardByID(ctx context.Context, id int64) (domain.Board, error)

	CreateTask(ctx context.Context, boardID int64, title, description string, status domain.TaskStatus) (domain.Task, error)
	TasksByBoard(ctx context.Context, boardID int64) ([]domain.Task, error)
	TaskByID(ctx context.Context, id int64) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// Principal is the verified identity attached to an authenticated request.
type Principal struct {
	UserID int64
	Email  string
}

// Authenticator issues and verifies session tokens.
type Authenticator interface {
	Issue(userID int64, email string) (string, error)
	Verify(token string) (Principal, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}
