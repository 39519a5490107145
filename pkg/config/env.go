package config

import (
	"os"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// GetEnv returns the value of an environment variable or a default value if not set.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvironment returns the current environment, defaulting to development.
func GetEnvironment() string {
	return strings.ToLower(GetEnv(envPrefix+"_SERVER_ENVIRONMENT", EnvDevelopment))
}

// IsProductionLikeEnv reports whether env enforces production configuration rules.
func IsProductionLikeEnv(env string) bool {
	env = strings.ToLower(env)
	return env == EnvStaging || env == EnvProduction
}

// IsProductionLike is IsProductionLikeEnv for the process environment.
func IsProductionLike() bool {
	return IsProductionLikeEnv(GetEnvironment())
}
