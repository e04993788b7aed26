package auth

import "github.com/driftline/backend/internal/models"

// AuthServiceInterface defines the contract for authentication operations.
// This enables mocking for unit tests without requiring a real database.
type AuthServiceInterface interface {
	// Registration and Login
	RegisterUser(req RegisterRequest, info SessionInfo) (*AuthResponse, error)
	LoginUser(req LoginRequest, info SessionInfo) (*AuthResponse, error)

	// User lookup
	FindUserByEmail(email string) (*models.User, error)

	// Token operations
	ValidateToken(tokenString string) (*models.User, *models.Session, error)
	TouchSession(sessionID string)

	// Session management
	ListSessions(userID string) ([]models.Session, error)
	RevokeSession(userID, sessionID string) error
	RevokeAllSessions(userID string) error
}

// Ensure Service implements AuthServiceInterface
var _ AuthServiceInterface = (*Service)(nil)
