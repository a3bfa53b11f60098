package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ttpunch/AgentProject/connectors/mongodb"
	"github.com/ttpunch/AgentProject/connectors/postgres"
	"github.com/ttpunch/AgentProject/store"
)

func newTestContext(t *testing.T, method, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAdminMiddlewareRejectsNonAdmin(t *testing.T) {
	s := &APIV1Service{}
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	c, _ := newTestContext(t, http.MethodGet, "/api/v1/users", "")
	c.Set(userContextKey, &store.User{Role: store.RoleUser})

	err := s.AdminMiddleware(next)(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestAdminMiddlewareAllowsAdmin(t *testing.T) {
	s := &APIV1Service{}
	called := false
	next := func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	}

	c, _ := newTestContext(t, http.MethodGet, "/api/v1/users", "")
	c.Set(userContextKey, &store.User{Role: store.RoleAdmin})

	require.NoError(t, s.AdminMiddleware(next)(c))
	assert.True(t, called)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	s := &APIV1Service{Secret: "test-secret"}
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	c, _ := newTestContext(t, http.MethodGet, "/api/v1/auth/me", "")
	err := s.AuthMiddleware(next)(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAuthMiddlewareRejectsGarbageToken(t *testing.T) {
	s := &APIV1Service{Secret: "test-secret"}
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	c, _ := newTestContext(t, http.MethodGet, "/api/v1/auth/me", "")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer not-a-jwt")

	err := s.AuthMiddleware(next)(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestListMachines(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT \\* FROM machines").WillReturnRows(
		sqlmock.NewRows([]string{"machine_id", "model"}).
			AddRow("CNC-001", "HAAS VF-2"))

	s := &APIV1Service{DB: postgres.NewWithDB(db)}
	c, rec := newTestContext(t, http.MethodGet, "/api/v1/machines", "")
	require.NoError(t, s.ListMachines(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "CNC-001", rows[0]["machine_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropDocumentID(t *testing.T) {
	oid := primitive.NewObjectID()
	rows := mongodb.NormalizeRows([]map[string]any{
		{"_id": oid, "machine_id": "CNC-001", "vibration": 0.9},
	})

	served := dropDocumentID(rows)
	require.Len(t, served, 1)
	assert.NotContains(t, served[0], "_id")
	assert.Equal(t, "CNC-001", served[0]["machine_id"])
}

func TestKnowledgeEndpointsUnavailableWithoutManager(t *testing.T) {
	s := &APIV1Service{}

	for name, handler := range map[string]echo.HandlerFunc{
		"list":   s.ListDocuments,
		"upload": s.UploadDocument,
		"delete": s.DeleteDocument,
		"sample": s.VectorSample,
	} {
		c, _ := newTestContext(t, http.MethodGet, "/api/v1/documents", "")
		handlerErr := handler(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, handlerErr, &httpErr, name)
		assert.Equal(t, http.StatusServiceUnavailable, httpErr.Code, name)
	}
}

func TestRegisterRejectsEmptyCredentials(t *testing.T) {
	s := &APIV1Service{}
	c, _ := newTestContext(t, http.MethodPost, "/api/v1/auth/register", `{"username":"","password":""}`)

	err := s.Register(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}
