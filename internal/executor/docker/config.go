package docker

import (
	"time"

	"pipeliner/internal/config"
)

// Config holds configuration for the container executor.
type Config struct {
	WorkspaceTarget string        // Mount point for the run workspace inside containers
	DefaultTimeout  time.Duration // Command timeout when the step declares none
}

// LoadConfigFromEnv loads container executor configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		WorkspaceTarget: config.GetEnv("DOCKER_WORKSPACE_TARGET", "/workspace"),
		DefaultTimeout:  config.GetDurationEnv("DOCKER_COMMAND_TIMEOUT", 15*time.Minute),
	}
}
