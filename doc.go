// Package backend provides the Driftline API server.

// This package contains the main application entry point. The actual API
// documentation is organized into subpackages:

// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/auth: Authentication, sessions and authorization
// - internal/websocket: Realtime gateway (presence, DMs, typing)
// - internal/chat: Direct-message service shared by both transports
// - internal/storage: File storage (S3) operations
// - internal/database: Database connection and migrations
// - internal/middleware: HTTP middleware (rate limiting, metrics, etc.)
// - internal/timeline: Home feed assembly
// - internal/container: Service wiring

// See the individual package documentation for detailed API reference.
package backend
