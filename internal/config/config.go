// Package config loads service and CLI settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	FirebaseProjectID string
	CredentialsFile   string
	DatabasePath      string
	LogLevel          string
	// CategoriesFile overrides the embedded chart of accounts when set
	CategoriesFile    string
	MaxUploadBytes    int64
	ReferenceCacheTTL time.Duration
	AllowedOrigin     string
}

// Load reads .env files (missing files are ignored) and then the
// environment. Variables already set in the environment win over .env
// values. Malformed numbers and durations are reported, not defaulted.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var errs []error
	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		FirebaseProjectID: getEnv("FIREBASE_PROJECT_ID", ""),
		CredentialsFile:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		DatabasePath:      getEnv("DATABASE_PATH", "finreport.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CategoriesFile:    getEnv("CATEGORIES_FILE", ""),
		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 20<<20, &errs),
		ReferenceCacheTTL: getEnvDuration("REFERENCE_CACHE_TTL", 5*time.Minute, &errs),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", "*"),
	}
	if cfg.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// RequireFirebase fails when the HTTP service cannot reach Firestore
func (c Config) RequireFirebase() error {
	if c.FirebaseProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64, errs *[]error) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
