// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the pipeline runner service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	WebhookSecret     string        // HMAC secret for push webhook verification (empty disables verification)
	PipelinesDir      string        // Directory with pipeline YAML definitions
	WorkspaceRoot     string        // Root directory for per-run workspaces
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	DockerEnabled     bool          // Whether jobs may run steps in containers
	MaxConcurrentJobs int           // Concurrent jobs per run
	RunRetention      time.Duration // How long finished runs stay queryable
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		WebhookSecret:     GetSecretFile(GetEnv("WEBHOOK_SECRET_FILE", "")),
		PipelinesDir:      GetEnv("PIPELINES_DIR", "./pipelines"),
		WorkspaceRoot:     GetEnv("WORKSPACE_ROOT", "/var/lib/pipeliner/workspaces"),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		DockerEnabled:     GetBoolEnv("DOCKER_ENABLED", false),
		MaxConcurrentJobs: GetIntEnv("MAX_CONCURRENT_JOBS", 4),
		RunRetention:      GetDurationEnv("RUN_RETENTION", time.Hour),
	}
}
