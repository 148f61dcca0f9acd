package config

import (
	"strconv"
	"time"
)

type SecurityConfig interface {
	GetTokenExpiry() time.Duration
	GetEnableRateLimiting() bool
	GetSignInRate() float64
	GetSignInBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetTokenExpiry is the lifetime of bearer tokens issued by the development auth API.
func (Security) GetTokenExpiry() time.Duration {
	return 12 * time.Hour
}

func (Security) GetEnableRateLimiting() bool {
	enabled, err := strconv.ParseBool(GetEnv("RATE_LIMIT", "true"))
	return err == nil && enabled
}

// GetSignInRate is the number of sign-in attempts per second allowed per client.
func (Security) GetSignInRate() float64 {
	return 0.5
}

func (Security) GetSignInBurst() int {
	return 5
}
