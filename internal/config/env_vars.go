package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	portEnvVar       = "PORT"
	appNameVar       = "APP_NAME"
	apiBaseURLEnvVar = "API_BASE_URL"
	storeDirEnvVar   = "STORE_DIR"
	jwtSecretEnvVar  = "JWT_SECRET"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Transcript Portal")
}

// GetAPIBaseURL returns the base URL of the external REST API that owns
// authentication, schools and students (e.g., "https://api.example.com/v1").
func (EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiBaseURLEnvVar, "http://localhost:8081"), "/")
}

// GetStoreDir is the directory used by the file backed durable store.
func (EnvVars) GetStoreDir() string {
	return GetEnv(storeDirEnvVar, "./data/store")
}

func (EnvVars) GetJWTSecret() string {
	return GetEnv(jwtSecretEnvVar, "dev-secret-change-me")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
