package appconf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored and variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// MissingEnvironmentKey is returned by Secret when neither the variable nor
// its _FILE counterpart yields a value.
type MissingEnvironmentKey string

func (k MissingEnvironmentKey) Error() string {
	return fmt.Sprintf("%s environment variable not set", string(k))
}

// Secret reads key from the environment, falling back to the file named by
// key_FILE.
func Secret(getenv func(string) string, key string) (string, error) {
	value := getenv(key)
	if path := getenv(key + "_FILE"); value == "" && path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s_FILE: %w", key, err)
		}
		value = string(content)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", MissingEnvironmentKey(key)
	}
	return value, nil
}

// ApplyEnv overrides cfg with environment variables. getenv is usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("OVAPI_BASE_URL", &cfg.OVapiBaseURL)
	str("NS_BASE_URL", &cfg.NSBaseURL)
	str("ALERTS_URL", &cfg.AlertsURL)
	str("GTFS_PATH", &cfg.GTFSPath)
	str("NATS_URL", &cfg.NATSURL)

	if v := getenv("OVWATCH_ENV"); v != "" {
		cfg.Env = EnvFromString(v)
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return &ConfigError{Field: "PORT", Reason: fmt.Sprintf("invalid port %q", v)}
		}
		cfg.Port = port
	}
	if v := getenv("POLL_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil || d <= 0 {
			return &ConfigError{Field: "POLL_INTERVAL", Reason: fmt.Sprintf("invalid interval %q", v)}
		}
		cfg.PollInterval = d
	}

	key, err := Secret(getenv, "NS_API_KEY")
	var missing MissingEnvironmentKey
	switch {
	case err == nil:
		cfg.NSAPIKey = key
	case errors.As(err, &missing):
		// NS departures are disabled without a key.
	default:
		return err
	}
	return nil
}

// parseInterval accepts a Go duration or a bare number of seconds.
func parseInterval(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
