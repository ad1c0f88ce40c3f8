package db

import (
	"time"

	"tablesync/internal/connection"
)

const (
	defaultConnectTimeoutSeconds = 30
	maxConnectTimeoutSeconds     = 300
)

// connectTimeoutSeconds is the dial/login timeout handed to every driver.
// Unset means the default; values beyond five minutes are clamped.
func connectTimeoutSeconds(config connection.ConnectionConfig) int {
	switch {
	case config.Timeout <= 0:
		return defaultConnectTimeoutSeconds
	case config.Timeout > maxConnectTimeoutSeconds:
		return maxConnectTimeoutSeconds
	default:
		return config.Timeout
	}
}

func connectTimeout(config connection.ConnectionConfig) time.Duration {
	return time.Duration(connectTimeoutSeconds(config)) * time.Second
}
