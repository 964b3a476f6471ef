package domain

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// TaskStatus is the board column a task sits in.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether s is one of the supported statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is a single card on a board. Position orders cards within their
// status column; BoardID never changes after creation.
type Task struct {
	ID          int64      `json:"id"`
	BoardID     int64      `json:"board_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Position    int64      `json:"position"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskUpdate is the write contract for task mutation. It is one of two
// variants: a full update rewriting title, description and status together,
// or a status-only move between columns. Any other field combination is
// rejected at parse time rather than silently ignored.
type TaskUpdate struct {
	Status      TaskStatus
	Title       string
	Description string

	full bool
}

// StatusUpdate builds the column-move variant.
func StatusUpdate(status TaskStatus) TaskUpdate {
	return TaskUpdate{Status: status}
}

// FullUpdate builds the variant overwriting all mutable fields.
func FullUpdate(title, description string, status TaskStatus) TaskUpdate {
	return TaskUpdate{Status: status, Title: title, Description: description, full: true}
}

// IsFull reports whether the update rewrites title and description as well.
func (u TaskUpdate) IsFull() bool {
	return u.full
}

// Validate checks the variant's invariants.
func (u TaskUpdate) Validate() error {
	if !u.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, u.Status)
	}
	if u.full && strings.TrimSpace(u.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	return nil
}

// ParseTaskUpdate decodes an update payload into its tagged variant.
// {status} selects a status-only move, {status,title,description} a full
// update. Unknown fields and any other combination fail with ErrValidation.
func ParseTaskUpdate(data []byte) (TaskUpdate, error) {
	var raw struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return TaskUpdate{}, fmt.Errorf("%w: invalid body", ErrValidation)
	}

	if raw.Status == nil {
		return TaskUpdate{}, fmt.Errorf("%w: status is required", ErrValidation)
	}

	var upd TaskUpdate
	switch {
	case raw.Title == nil && raw.Description == nil:
		upd = StatusUpdate(TaskStatus(*raw.Status))
	case raw.Title != nil && raw.Description != nil:
		upd = FullUpdate(*raw.Title, *raw.Description, TaskStatus(*raw.Status))
	default:
		return TaskUpdate{}, fmt.Errorf("%w: title and description must be updated together", ErrValidation)
	}

	if err := upd.Validate(); err != nil {
		return TaskUpdate{}, err
	}
	return upd, nil
}
