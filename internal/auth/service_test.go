package auth

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/models"
)

// AuthServiceTestSuite contains auth service tests
type AuthServiceTestSuite struct {
	suite.Suite
	db          *gorm.DB
	authService *Service
}

// SetupSuite initializes test database and auth service
func (suite *AuthServiceTestSuite) SetupSuite() {
	// Build test DSN from environment or use defaults
	host := getEnvOrDefault("POSTGRES_HOST", "localhost")
	port := getEnvOrDefault("POSTGRES_PORT", "5432")
	user := getEnvOrDefault("POSTGRES_USER", "postgres")
	password := getEnvOrDefault("POSTGRES_PASSWORD", "")
	dbname := getEnvOrDefault("POSTGRES_DB", "driftline_test")

	testDSN := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable", host, port, user, dbname)
	if password != "" {
		testDSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
	}

	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Quiet during tests
	})
	if err != nil {
		suite.T().Skipf("Skipping auth tests: database not available (%v)", err)
		return
	}

	// Set global DB for database package
	database.DB = db

	// Create test tables
	err = db.AutoMigrate(
		&models.User{},
		&models.Session{},
	)
	require.NoError(suite.T(), err)

	suite.db = db

	suite.authService = NewService([]byte("test_jwt_secret_key"))
}

// TearDownSuite cleans up after tests
func (suite *AuthServiceTestSuite) TearDownSuite() {
	suite.db.Exec("DROP TABLE IF EXISTS users, sessions CASCADE")

	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

// SetupTest cleans database before each test
func (suite *AuthServiceTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM sessions")
	suite.db.Exec("DELETE FROM users")
}

// TestRegisterUser tests user registration
func (suite *AuthServiceTestSuite) TestRegisterUser() {
	t := suite.T()

	req := RegisterRequest{
		Email:       "test@driftline.app",
		Username:    "firstuser",
		Password:    "password123",
		DisplayName: "First User",
	}

	authResp, err := suite.authService.RegisterUser(req, SessionInfo{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)
	require.NotNil(t, authResp)

	// Verify user and session were created
	assert.NotEmpty(t, authResp.Token)
	assert.NotEmpty(t, authResp.SessionID)
	assert.Equal(t, req.Email, authResp.User.Email)
	assert.Equal(t, req.Username, authResp.User.Username)
	assert.Equal(t, req.DisplayName, authResp.User.DisplayName)
	assert.NotNil(t, authResp.User.PasswordHash)

	var session models.Session
	err = suite.db.Where("id = ?", authResp.SessionID).First(&session).Error
	require.NoError(t, err)
	assert.Equal(t, authResp.User.ID, session.UserID)
	assert.False(t, session.LastActiveAt.IsZero(), "new session carries an activity stamp")

	// Test duplicate email registration
	_, err = suite.authService.RegisterUser(req, SessionInfo{})
	assert.Error(t, err)
	assert.Equal(t, ErrUserExists, err)

	// Test duplicate username
	req2 := RegisterRequest{
		Email:       "different@driftline.app",
		Username:    "firstuser", // Same username
		Password:    "password456",
		DisplayName: "Different User",
	}

	_, err = suite.authService.RegisterUser(req2, SessionInfo{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "username already taken")
}

// TestLoginUser tests user login
func (suite *AuthServiceTestSuite) TestLoginUser() {
	t := suite.T()

	registerReq := RegisterRequest{
		Email:       "login@test.com",
		Username:    "logintest",
		Password:    "testpass123",
		DisplayName: "Login Test",
	}

	_, err := suite.authService.RegisterUser(registerReq, SessionInfo{})
	require.NoError(t, err)

	// Test successful login
	loginReq := LoginRequest{
		Email:    "login@test.com",
		Password: "testpass123",
	}

	authResp, err := suite.authService.LoginUser(loginReq, SessionInfo{UserAgent: "test"})
	require.NoError(t, err)
	require.NotNil(t, authResp)

	assert.NotEmpty(t, authResp.Token)
	assert.Equal(t, loginReq.Email, authResp.User.Email)
	assert.NotNil(t, authResp.User.LastSeenAt)

	// Test unknown email: same error as wrong password, no account probing
	loginReq.Email = "nonexistent@test.com"
	_, err = suite.authService.LoginUser(loginReq, SessionInfo{})
	assert.Error(t, err)
	assert.Equal(t, ErrInvalidCredentials, err)

	// Test invalid password
	loginReq.Email = "login@test.com"
	loginReq.Password = "wrongpassword"
	_, err = suite.authService.LoginUser(loginReq, SessionInfo{})
	assert.Error(t, err)
	assert.Equal(t, ErrInvalidCredentials, err)

	// Test case-insensitive email
	loginReq.Email = "LOGIN@TEST.COM"
	loginReq.Password = "testpass123"
	_, err = suite.authService.LoginUser(loginReq, SessionInfo{})
	assert.NoError(t, err)
}

// TestLoginReactivatesAccount tests that login clears deactivation
func (suite *AuthServiceTestSuite) TestLoginReactivatesAccount() {
	t := suite.T()

	registerReq := RegisterRequest{
		Email:       "dormant@test.com",
		Username:    "dormant",
		Password:    "testpass123",
		DisplayName: "Dormant",
	}
	authResp, err := suite.authService.RegisterUser(registerReq, SessionInfo{})
	require.NoError(t, err)

	now := time.Now()
	suite.db.Model(&models.User{}).Where("id = ?", authResp.User.ID).Update("deactivated_at", now)

	loginResp, err := suite.authService.LoginUser(LoginRequest{
		Email:    "dormant@test.com",
		Password: "testpass123",
	}, SessionInfo{})
	require.NoError(t, err)
	assert.Nil(t, loginResp.User.DeactivatedAt)
}

// TestLoginBlockedAccounts tests that banned and suspended accounts cannot log in
func (suite *AuthServiceTestSuite) TestLoginBlockedAccounts() {
	t := suite.T()

	registerReq := RegisterRequest{
		Email:       "blocked@test.com",
		Username:    "blockedacct",
		Password:    "testpass123",
		DisplayName: "Blocked",
	}
	authResp, err := suite.authService.RegisterUser(registerReq, SessionInfo{})
	require.NoError(t, err)

	loginReq := LoginRequest{Email: "blocked@test.com", Password: "testpass123"}

	// Banned
	suite.db.Model(&models.User{}).Where("id = ?", authResp.User.ID).Update("is_banned", true)
	_, err = suite.authService.LoginUser(loginReq, SessionInfo{})
	assert.Equal(t, ErrAccountBanned, err)

	// Suspended
	until := time.Now().Add(time.Hour)
	suite.db.Model(&models.User{}).Where("id = ?", authResp.User.ID).
		Updates(map[string]interface{}{"is_banned": false, "suspended_until": until})
	_, err = suite.authService.LoginUser(loginReq, SessionInfo{})
	assert.Equal(t, ErrAccountSuspended, err)

	// Suspension expired
	past := time.Now().Add(-time.Hour)
	suite.db.Model(&models.User{}).Where("id = ?", authResp.User.ID).Update("suspended_until", past)
	_, err = suite.authService.LoginUser(loginReq, SessionInfo{})
	assert.NoError(t, err)
}

// TestValidateToken tests JWT validation against session and account state
func (suite *AuthServiceTestSuite) TestValidateToken() {
	t := suite.T()

	registerReq := RegisterRequest{
		Email:       "jwt@test.com",
		Username:    "jwttest",
		Password:    "testpass123",
		DisplayName: "JWT Test",
	}
	authResp, err := suite.authService.RegisterUser(registerReq, SessionInfo{})
	require.NoError(t, err)

	validatedUser, session, err := suite.authService.ValidateToken(authResp.Token)
	require.NoError(t, err)
	assert.Equal(t, authResp.User.ID, validatedUser.ID)
	assert.Equal(t, authResp.SessionID, session.ID)

	// Test invalid token
	_, _, err = suite.authService.ValidateToken("invalid.jwt.token")
	assert.Error(t, err)

	// Test wrong signing key
	wrongService := NewService([]byte("wrong_secret"))
	_, _, err = wrongService.ValidateToken(authResp.Token)
	assert.Error(t, err)

	// Revoking the session invalidates the still-signed token
	err = suite.authService.RevokeSession(authResp.User.ID, authResp.SessionID)
	require.NoError(t, err)
	_, _, err = suite.authService.ValidateToken(authResp.Token)
	assert.Equal(t, ErrSessionRevoked, err)
}

// TestValidateTokenAccountState tests rejection of banned, suspended,
// deactivated and deleted accounts
func (suite *AuthServiceTestSuite) TestValidateTokenAccountState() {
	t := suite.T()

	registerReq := RegisterRequest{
		Email:       "state@test.com",
		Username:    "statetest",
		Password:    "testpass123",
		DisplayName: "State Test",
	}
	authResp, err := suite.authService.RegisterUser(registerReq, SessionInfo{})
	require.NoError(t, err)
	userID := authResp.User.ID

	suite.db.Model(&models.User{}).Where("id = ?", userID).Update("is_banned", true)
	_, _, err = suite.authService.ValidateToken(authResp.Token)
	assert.Equal(t, ErrAccountBanned, err)

	until := time.Now().Add(time.Hour)
	suite.db.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"is_banned": false, "suspended_until": until})
	_, _, err = suite.authService.ValidateToken(authResp.Token)
	assert.Equal(t, ErrAccountSuspended, err)

	now := time.Now()
	suite.db.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"suspended_until": nil, "deactivated_at": now})
	_, _, err = suite.authService.ValidateToken(authResp.Token)
	assert.Equal(t, ErrAccountDeactivated, err)

	suite.db.Model(&models.User{}).Where("id = ?", userID).Update("deactivated_at", nil)
	suite.db.Delete(&models.User{}, "id = ?", userID)
	_, _, err = suite.authService.ValidateToken(authResp.Token)
	assert.Equal(t, ErrAccountDeleted, err)
}

// TestSessionManagement tests listing and revoking sessions
func (suite *AuthServiceTestSuite) TestSessionManagement() {
	t := suite.T()

	registerReq := RegisterRequest{
		Email:       "sessions@test.com",
		Username:    "sessiontest",
		Password:    "testpass123",
		DisplayName: "Session Test",
	}
	authResp, err := suite.authService.RegisterUser(registerReq, SessionInfo{UserAgent: "device-a"})
	require.NoError(t, err)

	// Second login, second session
	loginResp, err := suite.authService.LoginUser(LoginRequest{
		Email:    "sessions@test.com",
		Password: "testpass123",
	}, SessionInfo{UserAgent: "device-b"})
	require.NoError(t, err)

	sessions, err := suite.authService.ListSessions(authResp.User.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	// Revoke one session, the other keeps working
	err = suite.authService.RevokeSession(authResp.User.ID, authResp.SessionID)
	require.NoError(t, err)

	// Revoking twice is a no-op
	err = suite.authService.RevokeSession(authResp.User.ID, authResp.SessionID)
	assert.NoError(t, err)

	_, _, err = suite.authService.ValidateToken(authResp.Token)
	assert.Equal(t, ErrSessionRevoked, err)
	_, _, err = suite.authService.ValidateToken(loginResp.Token)
	assert.NoError(t, err)

	// Revoke all
	err = suite.authService.RevokeAllSessions(authResp.User.ID)
	require.NoError(t, err)
	_, _, err = suite.authService.ValidateToken(loginResp.Token)
	assert.Equal(t, ErrSessionRevoked, err)

	// Cannot revoke another user's session
	other, err := suite.authService.RegisterUser(RegisterRequest{
		Email:       "other@test.com",
		Username:    "othertest",
		Password:    "testpass123",
		DisplayName: "Other",
	}, SessionInfo{})
	require.NoError(t, err)
	err = suite.authService.RevokeSession(authResp.User.ID, other.SessionID)
	assert.Error(t, err)
}

// TestConcurrentRegistration tests concurrent user registration
func (suite *AuthServiceTestSuite) TestConcurrentRegistration() {
	t := suite.T()

	const numGoroutines = 10
	results := make(chan error, numGoroutines)

	// Attempt to register multiple users concurrently
	for i := 0; i < numGoroutines; i++ {
		go func(index int) {
			req := RegisterRequest{
				Email:       fmt.Sprintf("concurrent%d@test.com", index),
				Username:    fmt.Sprintf("concurrent%d", index),
				Password:    "password123",
				DisplayName: fmt.Sprintf("Concurrent User %d", index),
			}

			_, err := suite.authService.RegisterUser(req, SessionInfo{})
			results <- err
		}(i)
	}

	// Check all registrations succeeded
	for i := 0; i < numGoroutines; i++ {
		err := <-results
		assert.NoError(t, err, "Concurrent registration %d failed", i)
	}

	// Verify all users were created
	var userCount int64
	suite.db.Model(&models.User{}).Where("email LIKE 'concurrent%@test.com'").Count(&userCount)
	assert.Equal(t, int64(numGoroutines), userCount)
}

// Run the test suite
func TestAuthServiceSuite(t *testing.T) {
	// Skip if no test database available
	if os.Getenv("SKIP_DB_TESTS") == "true" {
		t.Skip("Skipping database tests")
	}

	suite.Run(t, new(AuthServiceTestSuite))
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
