package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/backend/internal/models"
)

// MockCall records a method call for assertion
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockAuthService is a mock implementation of AuthServiceInterface for testing.
type MockAuthService struct {
	mu sync.Mutex

	// Call tracking
	Calls []MockCall

	// Configurable function overrides
	RegisterUserFunc      func(req RegisterRequest, info SessionInfo) (*AuthResponse, error)
	LoginUserFunc         func(req LoginRequest, info SessionInfo) (*AuthResponse, error)
	FindUserByEmailFunc   func(email string) (*models.User, error)
	ValidateTokenFunc     func(tokenString string) (*models.User, *models.Session, error)
	ListSessionsFunc      func(userID string) ([]models.Session, error)
	RevokeSessionFunc     func(userID, sessionID string) error
	RevokeAllSessionsFunc func(userID string) error

	// Default error to return
	DefaultError error

	// Pre-configured users for testing
	Users map[string]*models.User // keyed by email

	// Sessions created by the mock, keyed by session ID
	Sessions map[string]*models.Session
}

// NewMockAuthService creates a new mock auth service with sensible defaults
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{
		Calls:    make([]MockCall, 0),
		Users:    make(map[string]*models.User),
		Sessions: make(map[string]*models.Session),
	}
}

// recordCall records a method call for later assertion
func (m *MockAuthService) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCalls returns all recorded calls (thread-safe)
func (m *MockAuthService) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// GetCallsForMethod returns calls for a specific method
func (m *MockAuthService) GetCallsForMethod(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []MockCall
	for _, call := range m.Calls {
		if call.Method == method {
			result = append(result, call)
		}
	}
	return result
}

// Reset clears all recorded calls
func (m *MockAuthService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]MockCall, 0)
}

// AssertCalled checks if a method was called at least once
func (m *MockAuthService) AssertCalled(method string) bool {
	return len(m.GetCallsForMethod(method)) > 0
}

// AddUser adds a test user to the mock service
func (m *MockAuthService) AddUser(user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.Email] = user
}

func (m *MockAuthService) mockSession(userID string) *models.Session {
	now := time.Now()
	session := &models.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		LastActiveAt: now,
	}
	m.mu.Lock()
	m.Sessions[session.ID] = session
	m.mu.Unlock()
	return session
}

// ============================================================================
// AuthServiceInterface implementation
// ============================================================================

func (m *MockAuthService) RegisterUser(req RegisterRequest, info SessionInfo) (*AuthResponse, error) {
	m.recordCall("RegisterUser", req, info)
	if m.RegisterUserFunc != nil {
		return m.RegisterUserFunc(req, info)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	if _, exists := m.Users[req.Email]; exists {
		return nil, ErrUserExists
	}

	user := &models.User{
		ID:          uuid.New().String(),
		Email:       req.Email,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Role:        models.RoleUser,
	}
	m.AddUser(user)
	session := m.mockSession(user.ID)

	return &AuthResponse{
		Token:     "mock_token_" + user.ID,
		User:      *user,
		SessionID: session.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (m *MockAuthService) LoginUser(req LoginRequest, info SessionInfo) (*AuthResponse, error) {
	m.recordCall("LoginUser", req, info)
	if m.LoginUserFunc != nil {
		return m.LoginUserFunc(req, info)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	user, exists := m.Users[req.Email]
	if !exists {
		return nil, ErrInvalidCredentials
	}
	session := m.mockSession(user.ID)

	return &AuthResponse{
		Token:     "mock_token_" + user.ID,
		User:      *user,
		SessionID: session.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (m *MockAuthService) FindUserByEmail(email string) (*models.User, error) {
	m.recordCall("FindUserByEmail", email)
	if m.FindUserByEmailFunc != nil {
		return m.FindUserByEmailFunc(email)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	user, exists := m.Users[email]
	if !exists {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (m *MockAuthService) ValidateToken(tokenString string) (*models.User, *models.Session, error) {
	m.recordCall("ValidateToken", tokenString)
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(tokenString)
	}
	if m.DefaultError != nil {
		return nil, nil, m.DefaultError
	}

	// Mock tokens look like "mock_token_<user_id>"
	const prefix = "mock_token_"
	if len(tokenString) <= len(prefix) || tokenString[:len(prefix)] != prefix {
		return nil, nil, ErrInvalidCredentials
	}
	userID := tokenString[len(prefix):]

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.Users {
		if user.ID == userID {
			now := time.Now()
			return user, &models.Session{ID: uuid.New().String(), UserID: user.ID, LastActiveAt: now}, nil
		}
	}
	return nil, nil, ErrUserNotFound
}

func (m *MockAuthService) TouchSession(sessionID string) {
	m.recordCall("TouchSession", sessionID)
}

func (m *MockAuthService) ListSessions(userID string) ([]models.Session, error) {
	m.recordCall("ListSessions", userID)
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(userID)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions []models.Session
	for _, s := range m.Sessions {
		if s.UserID == userID {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

func (m *MockAuthService) RevokeSession(userID, sessionID string) error {
	m.recordCall("RevokeSession", userID, sessionID)
	if m.RevokeSessionFunc != nil {
		return m.RevokeSessionFunc(userID, sessionID)
	}
	if m.DefaultError != nil {
		return m.DefaultError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.Sessions[sessionID]
	if !ok || session.UserID != userID {
		return ErrUserNotFound
	}
	now := time.Now()
	session.RevokedAt = &now
	return nil
}

func (m *MockAuthService) RevokeAllSessions(userID string) error {
	m.recordCall("RevokeAllSessions", userID)
	if m.RevokeAllSessionsFunc != nil {
		return m.RevokeAllSessionsFunc(userID)
	}
	if m.DefaultError != nil {
		return m.DefaultError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range m.Sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

// Ensure MockAuthService implements AuthServiceInterface
var _ AuthServiceInterface = (*MockAuthService)(nil)
