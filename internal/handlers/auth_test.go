package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/backend/internal/auth"
	"github.com/driftline/backend/internal/models"
)

// newAuthTestRouter wires the auth routes against a mock auth service so the
// error mapping can be exercised without a database.
func newAuthTestRouter(mock *auth.MockAuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(mock, nil)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	protected := api.Group("")
	protected.Use(h.AuthMiddleware())
	protected.GET("/auth/me", h.Me)
	protected.GET("/auth/sessions", h.ListSessions)
	protected.DELETE("/auth/sessions/:id", h.RevokeSession)

	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterValidation(t *testing.T) {
	mock := auth.NewMockAuthService()
	r := newAuthTestRouter(mock)

	t.Run("bad username shape is rejected", func(t *testing.T) {
		w := doJSON(t, r, "POST", "/api/v1/auth/register", "", gin.H{
			"email":        "carol@driftline.app",
			"username":     "not a username!",
			"password":     "hunter2hunter2",
			"display_name": "Carol",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, mock.GetCallsForMethod("RegisterUser"), "service should not be reached")
	})

	t.Run("missing password is rejected by binding", func(t *testing.T) {
		w := doJSON(t, r, "POST", "/api/v1/auth/register", "", gin.H{
			"email":        "carol@driftline.app",
			"username":     "carol",
			"display_name": "Carol",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate email maps to conflict", func(t *testing.T) {
		mock.AddUser(&models.User{ID: "u1", Email: "taken@driftline.app", Username: "taken"})
		w := doJSON(t, r, "POST", "/api/v1/auth/register", "", gin.H{
			"email":        "taken@driftline.app",
			"username":     "someone_else",
			"password":     "hunter2hunter2",
			"display_name": "Someone",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("duplicate username maps to conflict", func(t *testing.T) {
		mock.RegisterUserFunc = func(req auth.RegisterRequest, info auth.SessionInfo) (*auth.AuthResponse, error) {
			return nil, auth.ErrUsernameExists
		}
		defer func() { mock.RegisterUserFunc = nil }()

		w := doJSON(t, r, "POST", "/api/v1/auth/register", "", gin.H{
			"email":        "fresh@driftline.app",
			"username":     "taken",
			"password":     "hunter2hunter2",
			"display_name": "Fresh",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestLoginErrorMapping(t *testing.T) {
	mock := auth.NewMockAuthService()
	r := newAuthTestRouter(mock)

	t.Run("unknown account is unauthorized", func(t *testing.T) {
		w := doJSON(t, r, "POST", "/api/v1/auth/login", "", gin.H{
			"email":    "nobody@driftline.app",
			"password": "hunter2hunter2",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("banned account is forbidden", func(t *testing.T) {
		mock.LoginUserFunc = func(req auth.LoginRequest, info auth.SessionInfo) (*auth.AuthResponse, error) {
			return nil, auth.ErrAccountBanned
		}
		defer func() { mock.LoginUserFunc = nil }()

		w := doJSON(t, r, "POST", "/api/v1/auth/login", "", gin.H{
			"email":    "banned@driftline.app",
			"password": "hunter2hunter2",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("suspended account is forbidden", func(t *testing.T) {
		mock.LoginUserFunc = func(req auth.LoginRequest, info auth.SessionInfo) (*auth.AuthResponse, error) {
			return nil, auth.ErrAccountSuspended
		}
		defer func() { mock.LoginUserFunc = nil }()

		w := doJSON(t, r, "POST", "/api/v1/auth/login", "", gin.H{
			"email":    "suspended@driftline.app",
			"password": "hunter2hunter2",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	mock := auth.NewMockAuthService()
	r := newAuthTestRouter(mock)

	alice := &models.User{ID: "user-alice", Email: "alice@driftline.app", Username: "alice", Role: models.RoleUser}
	mock.AddUser(alice)

	t.Run("no token is unauthorized", func(t *testing.T) {
		w := doJSON(t, r, "GET", "/api/v1/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token is unauthorized", func(t *testing.T) {
		w := doJSON(t, r, "GET", "/api/v1/auth/me", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token loads the user", func(t *testing.T) {
		w := doJSON(t, r, "GET", "/api/v1/auth/me", "mock_token_user-alice", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			User models.User `json:"user"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "alice", resp.User.Username)
		assert.True(t, mock.AssertCalled("TouchSession"))
	})

	t.Run("revoked session is unauthorized", func(t *testing.T) {
		mock.ValidateTokenFunc = func(token string) (*models.User, *models.Session, error) {
			return nil, nil, auth.ErrSessionRevoked
		}
		defer func() { mock.ValidateTokenFunc = nil }()

		w := doJSON(t, r, "GET", "/api/v1/auth/me", "mock_token_user-alice", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("banned account with valid credential is forbidden", func(t *testing.T) {
		mock.ValidateTokenFunc = func(token string) (*models.User, *models.Session, error) {
			return nil, nil, auth.ErrAccountBanned
		}
		defer func() { mock.ValidateTokenFunc = nil }()

		w := doJSON(t, r, "GET", "/api/v1/auth/me", "mock_token_user-alice", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("deactivated account is forbidden", func(t *testing.T) {
		mock.ValidateTokenFunc = func(token string) (*models.User, *models.Session, error) {
			return nil, nil, auth.ErrAccountDeactivated
		}
		defer func() { mock.ValidateTokenFunc = nil }()

		w := doJSON(t, r, "GET", "/api/v1/auth/me", "mock_token_user-alice", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRevokeSessionNotFound(t *testing.T) {
	mock := auth.NewMockAuthService()
	r := newAuthTestRouter(mock)

	alice := &models.User{ID: "user-alice", Email: "alice@driftline.app", Username: "alice"}
	mock.AddUser(alice)
	mock.RevokeSessionFunc = func(userID, sessionID string) error {
		return auth.ErrSessionNotFound
	}

	w := doJSON(t, r, "DELETE", "/api/v1/auth/sessions/does-not-exist", "mock_token_user-alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
