package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance. The
// identity bridge routes are mounted only when a bridge is configured.
func Register(e *echo.Echo, store Store, auth Authenticator, bridge *IdentityBridge, logger *log.Logger, redactErrors bool) {
	e.POST("/api/register", register(store, redactErrors))
	e.POST("/api/login", login(store, auth, redactErrors))
	e.GET("/healthz", healthz(store))

	if bridge != nil {
		e.GET("/auth/external", externalLogin(bridge))
		e.GET("/auth/external/callback", externalCallback(bridge, redactErrors))
	}

	boards := e.Group("/api/boards", RequireAuth(auth))
	boards.GET("", listBoards(store, redactErrors))
	boards.POST("", createBoard(store, redactErrors))
	boards.GET("/:id/tasks", listTasks(store, logger, redactErrors))
	boards.POST("/:id/tasks", createTask(store, redactErrors))

	tasks := e.Group("/api/tasks", RequireAuth(auth))
	tasks.PUT("/:id", updateTask(store, redactErrors))
	tasks.DELETE("/:id", deleteTask(store, redactErrors))
}

func healthz(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

type createBoardRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type createBoardResponse struct {
	ID      int64            `json:"id"`
	Name    string           `json:"name"`
	Type    domain.BoardType `json:"type"`
	Message string           `json:"message"`
}

func listBoards(store Store, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := principalFrom(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "access denied"})
		}
		boards, err := store.BoardsByOwner(c.Request().Context(), p.UserID)
		if err != nil {
			return storageError(c, err, redactErrors)
		}
		return c.JSON(http.StatusOK, boards)
	}
}

func createBoard(store Store, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := principalFrom(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "access denied"})
		}

		var req createBoardRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		board, err := store.CreateBoard(c.Request().Context(), p.UserID, req.Name, domain.BoardType(req.Type))
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			}
			return storageError(c, err, redactErrors)
		}
		return c.JSON(http.StatusOK, createBoardResponse{
			ID:      board.ID,
			Name:    board.Name,
			Type:    board.Type,
			Message: "board created successfully",
		})
	}
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func listTasks(store Store, logger *log.Logger, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newTaskListMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		board, ok, err := ownedBoard(c, store, redactErrors)
		if err != nil || !ok {
			metrics.SetErrorStage("board_ownership")
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.TasksByBoard(c.Request().Context(), board.ID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = storageError(c, fetchErr, redactErrors)
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasks)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTask(store Store, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, ok, err := ownedBoard(c, store, redactErrors)
		if err != nil || !ok {
			return err
		}

		var req createTaskRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		task, err := store.CreateTask(c.Request().Context(), board.ID, req.Title, req.Description, domain.TaskStatus(req.Status))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrValidation):
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			case errors.Is(err, domain.ErrNotFound):
				return c.JSON(http.StatusNotFound, errorResponse{Error: "board not found"})
			default:
				return storageError(c, err, redactErrors)
			}
		}
		return c.JSON(http.StatusOK, task)
	}
}

func updateTask(store Store, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok, err := ownedTask(c, store, redactErrors)
		if err != nil || !ok {
			return err
		}

		body, err := io.ReadAll(io.LimitReader(c.Request().Body, requestBodyMaxSize))
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		upd, err := domain.ParseTaskUpdate(body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		if _, err := store.UpdateTask(c.Request().Context(), task.ID, upd); err != nil {
			switch {
			case errors.Is(err, domain.ErrValidation):
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			case errors.Is(err, domain.ErrNotFound):
				return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
			default:
				return storageError(c, err, redactErrors)
			}
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "task updated"})
	}
}

func deleteTask(store Store, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok, err := ownedTask(c, store, redactErrors)
		if err != nil || !ok {
			return err
		}

		if err := store.DeleteTask(c.Request().Context(), task.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
			}
			return storageError(c, err, redactErrors)
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "task deleted"})
	}
}

// ownedBoard resolves the :id route parameter to a board owned by the
// caller. A board that does not exist and a board owned by someone else are
// indistinguishable to the caller.
func ownedBoard(c echo.Context, store Store, redactErrors bool) (domain.Board, bool, error) {
	p, ok := principalFrom(c)
	if !ok {
		return domain.Board{}, false, c.JSON(http.StatusUnauthorized, errorResponse{Error: "access denied"})
	}
	boardID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return domain.Board{}, false, c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid board id"})
	}
	board, err := store.BoardByID(c.Request().Context(), boardID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Board{}, false, c.JSON(http.StatusNotFound, errorResponse{Error: "board not found"})
		}
		return domain.Board{}, false, storageError(c, err, redactErrors)
	}
	if board.UserID != p.UserID {
		return domain.Board{}, false, c.JSON(http.StatusNotFound, errorResponse{Error: "board not found"})
	}
	return board, true, nil
}

// ownedTask resolves the :id route parameter to a task whose board is owned
// by the caller. Mutating someone else's task is forbidden rather than
// hidden, matching the ownership rule for direct-by-id operations.
func ownedTask(c echo.Context, store Store, redactErrors bool) (domain.Task, bool, error) {
	p, ok := principalFrom(c)
	if !ok {
		return domain.Task{}, false, c.JSON(http.StatusUnauthorized, errorResponse{Error: "access denied"})
	}
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return domain.Task{}, false, c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid task id"})
	}
	task, err := store.TaskByID(c.Request().Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Task{}, false, c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}
		return domain.Task{}, false, storageError(c, err, redactErrors)
	}
	board, err := store.BoardByID(c.Request().Context(), task.BoardID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Task{}, false, c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}
		return domain.Task{}, false, storageError(c, err, redactErrors)
	}
	if board.UserID != p.UserID {
		return domain.Task{}, false, c.JSON(http.StatusForbidden, errorResponse{Error: "forbidden"})
	}
	return task, true, nil
}

func storageError(c echo.Context, err error, redact bool) error {
	c.Logger().Error(err)
	msg := err.Error()
	if redact {
		msg = "internal server error"
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: msg})
}
