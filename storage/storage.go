package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"kanban-api/domain"
)

// Storage provides access to the underlying SQLite database.
type Storage struct {
	db *sql.DB
}

// Open initializes a Storage at the given path and runs migrations.
func Open(dbPath string) (*Storage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}
	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database resources.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Storage) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT,
            external_id TEXT UNIQUE,
            name TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS boards (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            type TEXT NOT NULL,
            user_id INTEGER NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(user_id) REFERENCES users(id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_boards_user ON boards(user_id);`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            board_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'todo',
            position INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_board ON tasks(board_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_board_status ON tasks(board_id, status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `SELECT id, email, password_hash, external_id, name, created_at FROM users`

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u        domain.User
		pwHash   sql.NullString
		external sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &pwHash, &external, &u.Name, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	if pwHash.Valid {
		u.PasswordHash = &pwHash.String
	}
	if external.Valid {
		u.ExternalID = &external.String
	}
	return u, nil
}

// CreateUser persists a new account. At least one credential (password hash
// or external identity) must be supplied.
func (s *Storage) CreateUser(ctx context.Context, email string, passwordHash, externalID *string, name string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, fmt.Errorf("%w: email must not be empty", domain.ErrValidation)
	}
	if passwordHash == nil && externalID == nil {
		return domain.User{}, fmt.Errorf("%w: either a password or an external identity is required", domain.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO users(email, password_hash, external_id, name) VALUES(?, ?, ?, ?)`,
		email, nullable(passwordHash), nullable(externalID), name)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("%w: user", domain.ErrDuplicate)
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("user id: %w", err)
	}
	u, err := scanUser(tx.QueryRowContext(ctx, userColumns+` WHERE id = ?`, id))
	if err != nil {
		return domain.User{}, fmt.Errorf("reselect user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

// UserByEmail fetches an account by email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UserByExternalID fetches an account by its external identity id.
func (s *Storage) UserByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE external_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UserByID fetches an account by id.
func (s *Storage) UserByID(ctx context.Context, id int64) (domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

const boardColumns = `SELECT id, name, type, user_id, created_at FROM boards`

func scanBoard(row rowScanner) (domain.Board, error) {
	var b domain.Board
	if err := row.Scan(&b.ID, &b.Name, &b.Type, &b.UserID, &b.CreatedAt); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

// CreateBoard persists a new board for the given owner.
func (s *Storage) CreateBoard(ctx context.Context, ownerID int64, name string, boardType domain.BoardType) (domain.Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Board{}, fmt.Errorf("%w: board name must not be empty", domain.ErrValidation)
	}
	if !boardType.Valid() {
		return domain.Board{}, fmt.Errorf("%w: invalid board type %q", domain.ErrValidation, boardType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Board{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO boards(name, type, user_id) VALUES(?, ?, ?)`, name, boardType, ownerID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Board{}, fmt.Errorf("%w: owner", domain.ErrNotFound)
		}
		return domain.Board{}, fmt.Errorf("insert board: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Board{}, fmt.Errorf("board id: %w", err)
	}
	b, err := scanBoard(tx.QueryRowContext(ctx, boardColumns+` WHERE id = ?`, id))
	if err != nil {
		return domain.Board{}, fmt.Errorf("reselect board: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Board{}, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// BoardsByOwner returns the owner's boards in creation order.
func (s *Storage) BoardsByOwner(ctx context.Context, ownerID int64) ([]domain.Board, error) {
	rows, err := s.db.QueryContext(ctx, boardColumns+` WHERE user_id = ? ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	boards := []domain.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// BoardByID fetches a single board.
func (s *Storage) BoardByID(ctx context.Context, id int64) (domain.Board, error) {
	b, err := scanBoard(s.db.QueryRowContext(ctx, boardColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Board{}, fmt.Errorf("%w: board", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Board{}, fmt.Errorf("get board: %w", err)
	}
	return b, nil
}

const taskColumns = `SELECT id, board_id, title, description, status, position, created_at, updated_at FROM tasks`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	if err := row.Scan(&t.ID, &t.BoardID, &t.Title, &t.Description, &t.Status, &t.Position, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// CreateTask inserts a new task at the end of its status column.
func (s *Storage) CreateTask(ctx context.Context, boardID int64, title, description string, status domain.TaskStatus) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Task{}, fmt.Errorf("%w: task title must not be empty", domain.ErrValidation)
	}
	if status == "" {
		status = domain.StatusTodo
	}
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	pos, err := nextPosition(ctx, tx, boardID, status)
	if err != nil {
		return domain.Task{}, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tasks(board_id, title, description, status, position) VALUES(?, ?, ?, ?, ?)`,
		boardID, title, strings.TrimSpace(description), status, pos)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Task{}, fmt.Errorf("%w: board", domain.ErrNotFound)
		}
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Task{}, fmt.Errorf("task id: %w", err)
	}
	t, err := scanTask(tx.QueryRowContext(ctx, taskColumns+` WHERE id = ?`, id))
	if err != nil {
		return domain.Task{}, fmt.Errorf("reselect task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// TasksByBoard returns the board's tasks ordered by position.
func (s *Storage) TasksByBoard(ctx context.Context, boardID int64) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskColumns+` WHERE board_id = ? ORDER BY position ASC, id ASC`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TaskByID fetches a single task.
func (s *Storage) TaskByID(ctx context.Context, id int64) (domain.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, taskColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("%w: task", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask applies a full or status-only update. Moving a task to another
// column places it at the end of that column.
func (s *Storage) UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) (domain.Task, error) {
	if err := upd.Validate(); err != nil {
		return domain.Task{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanTask(tx.QueryRowContext(ctx, taskColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("%w: task", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}

	title := current.Title
	description := current.Description
	if upd.IsFull() {
		title = strings.TrimSpace(upd.Title)
		description = strings.TrimSpace(upd.Description)
	}
	position := current.Position
	if upd.Status != current.Status {
		position, err = nextPosition(ctx, tx, current.BoardID, upd.Status)
		if err != nil {
			return domain.Task{}, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, position = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, description, upd.Status, position, id); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	t, err := scanTask(tx.QueryRowContext(ctx, taskColumns+` WHERE id = ?`, id))
	if err != nil {
		return domain.Task{}, fmt.Errorf("reselect task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task by id. Deleting a missing task is an error.
func (s *Storage) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: task", domain.ErrNotFound)
	}
	return nil
}

func nextPosition(ctx context.Context, tx *sql.Tx, boardID int64, status domain.TaskStatus) (int64, error) {
	var position sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM tasks WHERE board_id = ? AND status = ?`, boardID, status).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select position: %w", err)
	}
	if position.Valid {
		return position.Int64 + 1, nil
	}
	return 0, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
