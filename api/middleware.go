package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const principalContextKey = "principal"

// RequireAuth rejects requests without a valid bearer token. A missing token
// yields 401, a present but invalid one 403. On success the verified
// principal is attached to the request context for downstream handlers.
func RequireAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if errors.Is(err, errMissingAuthorization) {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "access denied"})
			}
			if err != nil {
				return c.JSON(http.StatusForbidden, errorResponse{Error: "invalid token"})
			}
			principal, err := auth.Verify(token)
			if err != nil {
				return c.JSON(http.StatusForbidden, errorResponse{Error: "invalid token"})
			}
			c.Set(principalContextKey, principal)
			return next(c)
		}
	}
}

func principalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalContextKey).(Principal)
	return p, ok
}
