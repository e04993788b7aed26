package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrUsernameExists     = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrSessionNotFound    = errors.New("session not found")
	ErrAccountBanned      = errors.New("account banned")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrAccountDeleted     = errors.New("account deleted")
)

// Service handles all authentication operations
type Service struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService creates a new authentication service
func NewService(jwtSecret []byte) *Service {
	return &Service{
		jwtSecret: jwtSecret,
		tokenTTL:  24 * time.Hour,
	}
}

// AuthResponse represents authentication response
type AuthResponse struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	SessionID string      `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// RegisterRequest represents registration request
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required,min=3,max=30"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=50"`
}

// LoginRequest represents login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SessionInfo carries request metadata recorded on the session row
type SessionInfo struct {
	UserAgent string
	IP        string
}

// RegisterUser creates a new user with email/password and opens a session
func (s *Service) RegisterUser(req RegisterRequest, info SessionInfo) (*AuthResponse, error) {
	// Check if user exists by email (case-insensitive)
	var existingUser models.User
	err := database.DB.Where("LOWER(email) = LOWER(?)", req.Email).First(&existingUser).Error
	if err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	// Check if username is taken
	var usernameCheck models.User
	err = database.DB.Where("LOWER(username) = LOWER(?)", req.Username).First(&usernameCheck).Error
	if err == nil {
		return nil, ErrUsernameExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	hashedPasswordStr := string(hashedPassword)
	user := models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: &hashedPasswordStr,
		Role:         models.RoleUser,
	}

	if err := database.DB.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.openSession(&user, info)
}

// LoginUser authenticates with email/password and opens a session.
// Logging in to a deactivated account reactivates it.
func (s *Service) LoginUser(req LoginRequest, info SessionInfo) (*AuthResponse, error) {
	var user models.User
	err := database.DB.Where("LOWER(email) = LOWER(?)", req.Email).First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.IsBanned {
		return nil, ErrAccountBanned
	}
	if user.IsSuspended() {
		return nil, ErrAccountSuspended
	}

	// Reactivate on successful login
	if user.IsDeactivated() {
		user.DeactivatedAt = nil
		logger.Log.Info("account reactivated on login", logger.WithUserID(user.ID))
	}

	now := time.Now()
	user.LastSeenAt = &now
	database.DB.Save(&user)

	return s.openSession(&user, info)
}

// FindUserByEmail finds user by email (case-insensitive)
func (s *Service) FindUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := database.DB.Where("LOWER(email) = LOWER(?)", email).First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &user, nil
}

// openSession creates a session row and signs a JWT carrying its ID
func (s *Service) openSession(user *models.User, info SessionInfo) (*AuthResponse, error) {
	now := time.Now()
	session := models.Session{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		UserAgent:    info.UserAgent,
		IP:           info.IP,
		LastActiveAt: now,
	}
	if err := database.DB.Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"user_id":    user.ID,
		"session_id": session.ID,
		"username":   user.Username,
		"role":       string(user.Role),
		"exp":        expiresAt.Unix(),
		"iat":        now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &AuthResponse{
		Token:     tokenString,
		User:      *user,
		SessionID: session.ID,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken validates a JWT, checks the backing session and account state,
// and returns fresh user data. An expired or revoked session fails validation
// even when the token signature is still valid.
func (s *Service) ValidateToken(tokenString string) (*models.User, *models.Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, nil, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, nil, errors.New("invalid user_id in token")
	}
	sessionID, ok := claims["session_id"].(string)
	if !ok {
		return nil, nil, errors.New("invalid session_id in token")
	}

	var session models.Session
	err = database.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrSessionRevoked
	} else if err != nil {
		return nil, nil, fmt.Errorf("database error: %w", err)
	}
	if session.IsRevoked() {
		return nil, nil, ErrSessionRevoked
	}

	// Fetch fresh user data; soft-deleted accounts fail here
	var user models.User
	err = database.DB.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrAccountDeleted
	} else if err != nil {
		return nil, nil, fmt.Errorf("database error: %w", err)
	}

	switch {
	case user.IsBanned:
		return nil, nil, ErrAccountBanned
	case user.IsSuspended():
		return nil, nil, ErrAccountSuspended
	case user.IsDeactivated():
		return nil, nil, ErrAccountDeactivated
	}

	return &user, &session, nil
}

// TouchSession updates a session's last-active timestamp
func (s *Service) TouchSession(sessionID string) {
	now := time.Now()
	database.DB.Model(&models.Session{}).Where("id = ?", sessionID).Update("last_active_at", now)
}

// ListSessions returns the user's sessions, active ones first
func (s *Service) ListSessions(userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := database.DB.Where("user_id = ?", userID).
		Order("revoked_at IS NOT NULL, last_active_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return sessions, nil
}

// RevokeSession marks a session revoked. Revoking an already revoked session
// is a no-op.
func (s *Service) RevokeSession(userID, sessionID string) error {
	var session models.Session
	err := database.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	} else if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	if session.IsRevoked() {
		return nil
	}

	now := time.Now()
	session.RevokedAt = &now
	if err := database.DB.Save(&session).Error; err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllSessions revokes every active session for a user
func (s *Service) RevokeAllSessions(userID string) error {
	now := time.Now()
	err := database.DB.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}
