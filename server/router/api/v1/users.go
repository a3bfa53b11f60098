package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ttpunch/AgentProject/store"
)

// AdminMiddleware rejects requests from non-admin accounts. Runs after
// AuthMiddleware, so the user is already resolved.
func (s *APIV1Service) AdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if user := currentUser(c); user == nil || user.Role != store.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

// ListUsers returns every registered account.
func (s *APIV1Service) ListUsers(c echo.Context) error {
	users, err := s.Store.ListUsers(c.Request().Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list users")
	}
	return c.JSON(http.StatusOK, users)
}

// ResetUserPassword sets a new password on any account.
func (s *APIV1Service) ResetUserPassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil || req.NewPassword == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "new_password is required")
	}
	err := s.Store.UpdateUserPassword(c.Request().Context(), c.Param("id"), req.NewPassword)
	if errors.Is(err, store.ErrUserNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		slog.Error("failed to reset password", "user", c.Param("id"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reset password")
	}
	return c.NoContent(http.StatusNoContent)
}
