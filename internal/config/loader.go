package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MemoryDSN selects the process-local credential store instead of SQLite.
const MemoryDSN = ":memory:"

// Config captures environment driven configuration values for the GymDesk client.
type Config struct {
	APIBaseURL            string
	CredentialsDSN        string
	CredentialsPassphrase string
	HTTPTimeout           time.Duration
	CacheTTL              time.Duration
	CacheSize             int
	RateLimit             float64
	LogLevel              slog.Level
}

// Load parses configuration values from the current process environment.
//
// Values found in the optional env files are applied first without overriding
// variables that are already set. Defaults are applied for optional fields and
// every missing or invalid key is reported in a single error.
func Load(envFiles ...string) (Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return Config{}, err
	}

	cfg := Config{
		CredentialsDSN: "file:gymdesk-credentials.db",
		HTTPTimeout:    15 * time.Second,
		CacheTTL:       30 * time.Second,
		CacheSize:      256,
		LogLevel:       slog.LevelInfo,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if base := strings.TrimSpace(os.Getenv("GYMDESK_API_BASE_URL")); base == "" {
		missing = append(missing, "GYMDESK_API_BASE_URL")
	} else if !validBaseURL(base) {
		invalid = append(invalid, "GYMDESK_API_BASE_URL")
	} else {
		cfg.APIBaseURL = strings.TrimRight(base, "/")
	}

	if dsn := strings.TrimSpace(os.Getenv("GYMDESK_CREDENTIALS_DSN")); dsn != "" {
		cfg.CredentialsDSN = dsn
	}

	cfg.CredentialsPassphrase = os.Getenv("GYMDESK_CREDENTIALS_PASSPHRASE")

	if value := strings.TrimSpace(os.Getenv("GYMDESK_HTTP_TIMEOUT")); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "GYMDESK_HTTP_TIMEOUT")
		} else {
			cfg.HTTPTimeout = timeout
		}
	}

	if value := strings.TrimSpace(os.Getenv("GYMDESK_CACHE_TTL")); value != "" {
		ttl, err := time.ParseDuration(value)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "GYMDESK_CACHE_TTL")
		} else {
			cfg.CacheTTL = ttl
		}
	}

	if value := strings.TrimSpace(os.Getenv("GYMDESK_CACHE_SIZE")); value != "" {
		size, err := strconv.Atoi(value)
		if err != nil || size <= 0 {
			invalid = append(invalid, "GYMDESK_CACHE_SIZE")
		} else {
			cfg.CacheSize = size
		}
	}

	if value := strings.TrimSpace(os.Getenv("GYMDESK_RATE_LIMIT")); value != "" {
		limit, err := strconv.ParseFloat(value, 64)
		if err != nil || limit < 0 {
			invalid = append(invalid, "GYMDESK_RATE_LIMIT")
		} else {
			cfg.RateLimit = limit
		}
	}

	if value := strings.TrimSpace(os.Getenv("GYMDESK_LOG_LEVEL")); value != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err != nil {
			invalid = append(invalid, "GYMDESK_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// UsesMemoryStore reports whether credentials should live only in process memory.
func (c Config) UsesMemoryStore() bool {
	return strings.TrimSpace(c.CredentialsDSN) == MemoryDSN
}

func loadEnvFiles(files []string) error {
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to read env file %s: %w", file, err)
		}
	}
	return nil
}

func validBaseURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
