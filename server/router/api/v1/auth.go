package v1

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ttpunch/AgentProject/store"
)

// tokenLifetime is how long an issued access token stays valid.
const tokenLifetime = 24 * time.Hour

// userContextKey is where the auth middleware stores the resolved user.
const userContextKey = "auth-user"

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register creates an account and returns its public profile.
func (s *APIV1Service) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	user, err := s.Store.CreateUser(c.Request().Context(), req.Username, req.Email, req.Password, store.RoleUser)
	if errors.Is(err, store.ErrUserExists) {
		return echo.NewHTTPError(http.StatusBadRequest, "username already registered")
	}
	if err != nil {
		slog.Error("failed to create user", "username", req.Username, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create user")
	}
	return c.JSON(http.StatusCreated, user)
}

// Login verifies credentials and issues a signed token.
func (s *APIV1Service) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := s.Store.GetUserByUsername(c.Request().Context(), req.Username)
	if err != nil || !store.VerifyPassword(user, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	token, err := s.issueToken(user)
	if err != nil {
		slog.Error("failed to sign token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me returns the authenticated user's profile.
func (s *APIV1Service) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}

type passwordRequest struct {
	NewPassword string `json:"new_password"`
}

// ChangePassword replaces the authenticated user's password.
func (s *APIV1Service) ChangePassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil || req.NewPassword == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "new_password is required")
	}
	user := currentUser(c)
	if err := s.Store.UpdateUserPassword(c.Request().Context(), user.ID.Hex(), req.NewPassword); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update password")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) issueToken(user *store.User) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   user.ID.Hex(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.Secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// AuthMiddleware validates the bearer token and loads the account into the
// request context.
func (s *APIV1Service) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.Secret), nil
		})
		if err != nil || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		user, err := s.Store.GetUserByID(c.Request().Context(), claims.Subject)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "user not found")
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

func currentUser(c echo.Context) *store.User {
	user, _ := c.Get(userContextKey).(*store.User)
	return user
}
