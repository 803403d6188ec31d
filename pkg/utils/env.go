package utils

import "os"

// EnvOrDefault returns the value of the environment variable identified
// by key, or fallback if the variable is unset or empty. Configuration
// beyond this single bootstrap lookup goes through pkg/config's viper
// loader, which applies its own env overrides.
func EnvOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
