package container

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/alerts"
	"github.com/driftline/backend/internal/auth"
	"github.com/driftline/backend/internal/cache"
	"github.com/driftline/backend/internal/chat"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/storage"
	"github.com/driftline/backend/internal/websocket"
)

// MockContainer is a container designed for testing.
// It allows easy overriding of dependencies with test doubles (mocks, stubs, fakes).
type MockContainer struct {
	*Container
	overrides map[string]interface{}
}

// NewMock creates a new mock container pre-populated with noop/stub implementations
func NewMock() *MockContainer {
	return &MockContainer{
		Container: New(),
		overrides: make(map[string]interface{}),
	}
}

// WithMockDB sets the database for testing
func (m *MockContainer) WithMockDB(db *gorm.DB) *MockContainer {
	m.SetDB(db)
	return m
}

// WithMockLogger sets a test logger
func (m *MockContainer) WithMockLogger(l *zap.Logger) *MockContainer {
	m.SetLogger(l)
	return m
}

// WithMockS3Uploader sets a mock S3 uploader
func (m *MockContainer) WithMockS3Uploader(uploader *storage.S3Uploader) *MockContainer {
	m.SetS3Uploader(uploader)
	return m
}

// WithMockAuthService sets a mock auth service
func (m *MockContainer) WithMockAuthService(service *auth.Service) *MockContainer {
	m.SetAuthService(service)
	return m
}

// WithMockChatService sets a mock chat service
func (m *MockContainer) WithMockChatService(service *chat.Service) *MockContainer {
	m.SetChatService(service)
	return m
}

// WithMockWebSocketHandler sets a mock WebSocket handler
func (m *MockContainer) WithMockWebSocketHandler(handler *websocket.Handler) *MockContainer {
	m.SetWebSocketHandler(handler)
	return m
}

// WithMockCache sets a mock cache
func (m *MockContainer) WithMockCache(c *cache.RedisClient) *MockContainer {
	m.SetCache(c)
	return m
}

// WithMockAlertManager sets a mock alert manager
func (m *MockContainer) WithMockAlertManager(manager *alerts.AlertManager) *MockContainer {
	m.SetAlertManager(manager)
	return m
}

// WithMockAlertEvaluator sets a mock alert evaluator
func (m *MockContainer) WithMockAlertEvaluator(evaluator *alerts.Evaluator) *MockContainer {
	m.SetAlertEvaluator(evaluator)
	return m
}

// Override sets a custom override for a specific dependency type
func (m *MockContainer) Override(key string, value interface{}) *MockContainer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = value
	return m
}

// GetOverride retrieves an override if set
func (m *MockContainer) GetOverride(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.overrides[key]
	return val, ok
}

// MinimalMock creates a mock container with only the absolute minimum dependencies
// Useful for isolated unit tests
func MinimalMock() *MockContainer {
	mock := NewMock()
	mock.SetLogger(logger.Log)
	return mock
}

// Clean cleans up test containers after tests complete
func (m *MockContainer) Clean(ctx context.Context) error {
	return m.Cleanup(ctx)
}
