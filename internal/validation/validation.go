package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/driftline/backend/internal/cache"
	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/storage"
	"go.uber.org/zap"
)

// ServiceValidator handles validation of optional services
type ServiceValidator struct {
	requiredServices []string
}

// NewServiceValidator creates a new service validator
func NewServiceValidator() *ServiceValidator {
	return &ServiceValidator{
		requiredServices: parseRequiredServices(),
	}
}

// ValidateServices validates all configured services
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.requiredServices) == 0 {
		logger.Log.Info("No required services configured for validation")
		return nil
	}

	logger.Log.Info("🔍 Validating required services",
		zap.Strings("services", sv.requiredServices),
	)

	services := sv.getServiceChecks()

	for _, serviceName := range sv.requiredServices {
		serviceChecker, ok := services[serviceName]
		if !ok {
			logger.Log.Warn("Unknown service type in validation",
				zap.String("service", serviceName),
			)
			continue
		}

		logger.Log.Info("Validating service",
			zap.String("service", serviceName),
		)

		timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := serviceChecker(timeoutCtx); err != nil {
			cancel()
			errorMsg := fmt.Sprintf("❌ Required service '%s' validation failed: %v", serviceName, err)
			logger.Log.Error(errorMsg)
			return fmt.Errorf("%s", errorMsg)
		}
		cancel()

		logger.Log.Info("✅ Service validated successfully",
			zap.String("service", serviceName),
		)
	}

	logger.Log.Info("✅ All required services validated successfully")
	return nil
}

// getServiceChecks returns a map of service names to their validation functions
func (sv *ServiceValidator) getServiceChecks() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		"postgres": validatePostgres,
		"s3":       validateS3,
		"redis":    validateRedis,
	}
}

// validatePostgres checks the primary database connection
func validatePostgres(ctx context.Context) error {
	if database.DB == nil {
		return fmt.Errorf("database connection not initialized")
	}
	if err := database.Health(); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// validateS3 checks if S3 bucket is accessible
func validateS3(ctx context.Context) error {
	region := os.Getenv("AWS_REGION")
	bucket := os.Getenv("AWS_BUCKET")
	accessKeyID := os.Getenv("AWS_ACCESS_KEY_ID")
	secretAccessKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if region == "" || bucket == "" {
		return fmt.Errorf("AWS_REGION and AWS_BUCKET are required for S3 validation")
	}

	if accessKeyID == "" || secretAccessKey == "" {
		return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required for S3 validation")
	}

	// Try to create an S3 uploader and check bucket access
	// This is the same pattern used in main.go
	cdnURL := os.Getenv("CDN_BASE_URL")
	if cdnURL == "" {
		cdnURL = "https://cdn.driftline.app"
	}

	s3Uploader, err := storage.NewS3Uploader(region, bucket, cdnURL)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	if err := s3Uploader.CheckBucketAccess(ctx); err != nil {
		return fmt.Errorf("S3 bucket access check failed: %w", err)
	}

	return nil
}

// validateRedis checks if Redis is reachable
func validateRedis(ctx context.Context) error {
	redisHost := os.Getenv("REDIS_HOST")
	redisPort := os.Getenv("REDIS_PORT")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	if redisHost == "" {
		redisHost = "localhost"
	}
	if redisPort == "" {
		redisPort = "6379"
	}

	redisClient, err := cache.NewRedisClient(redisHost, redisPort, redisPassword)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()

	return nil
}

// parseRequiredServices parses the DRIFTLINE_BACKEND_REQUIRE_* environment variables
// Returns a list of service names that are required
func parseRequiredServices() []string {
	var required []string

	// List of all optional services
	services := []string{"postgres", "s3", "redis"}

	for _, service := range services {
		envVar := fmt.Sprintf("DRIFTLINE_BACKEND_REQUIRE_%s", strings.ToUpper(service))
		value := os.Getenv(envVar)

		if isTruthy(value) {
			required = append(required, service)
		}
	}

	return required
}

// isTruthy checks if a string value represents a truthy value
func isTruthy(value string) bool {
	if value == "" {
		return false
	}

	value = strings.ToLower(strings.TrimSpace(value))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}
