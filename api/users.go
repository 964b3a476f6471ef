package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"kanban-api/domain"
)

const bcryptCost = 10

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  loginUser `json:"user"`
}

type loginUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func register(store Store, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var req registerRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Email == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email and password are required"})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "registration failed"})
		}
		hashStr := string(hash)

		if _, err := store.CreateUser(ctx, req.Email, &hashStr, nil, req.Name); err != nil {
			switch {
			case errors.Is(err, domain.ErrDuplicate):
				return c.JSON(http.StatusConflict, errorResponse{Error: "email already registered"})
			case errors.Is(err, domain.ErrValidation):
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			default:
				return storageError(c, err, redactErrors)
			}
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "user registered successfully"})
	}
}

func login(store Store, auth Authenticator, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var req loginRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		user, err := store.UserByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
			}
			return storageError(c, err, redactErrors)
		}
		if !user.HasPassword() {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		}
		if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)) != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		}

		token, err := auth.Issue(user.ID, user.Email)
		if err != nil {
			return storageError(c, err, redactErrors)
		}
		return c.JSON(http.StatusOK, loginResponse{
			Token: token,
			User:  loginUser{ID: user.ID, Email: user.Email, Name: user.Name},
		})
	}
}

func decodeBody(body io.Reader, dst any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, requestBodyMaxSize))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
