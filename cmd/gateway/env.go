package main

import "os"

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
