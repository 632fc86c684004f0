package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port               string
	UploadMaxBytes     int64
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP (empty URL disables notifications)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets row source
	GoogleSpreadsheetID      string
	GoogleSheetRange         string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Summary cache
	SummaryCacheSize   int
	SummaryCacheTTL    time.Duration
	WarmWorkers        int
	StartupWarmPeriods int

	// Backup
	BackupEnabled   bool
	BackupSchedule  string
	BackupTimezone  string
	BackupDir       string
	BackupNASURL    string
	BackupNASToken  string
	BackupGCSBucket string
	BackupGCSPrefix string

	// Logging
	LogLevel  string
	LogFormat string
}

var validBackends = []string{"memory", "sqlite"}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		UploadMaxBytes:     int64(getEnvInt("UPLOAD_MAX_BYTES", 10<<20)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/kakeibo.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kakeibo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_periods"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetRange:         getEnv("GOOGLE_SHEET_RANGE", "Export!A:G"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		SummaryCacheSize:   getEnvInt("SUMMARY_CACHE_SIZE", 64),
		SummaryCacheTTL:    getEnvDuration("SUMMARY_CACHE_TTL", 10*time.Minute),
		WarmWorkers:        getEnvInt("WARM_WORKERS", 4),
		StartupWarmPeriods: getEnvInt("STARTUP_WARM_PERIODS", 3),

		BackupEnabled:   getEnvBool("BACKUP_ENABLED", true),
		BackupSchedule:  getEnv("BACKUP_SCHEDULE", "0 3 * * 0"),
		BackupTimezone:  getEnv("BACKUP_TIMEZONE", "Asia/Tokyo"),
		BackupDir:       getEnv("BACKUP_DIR", os.TempDir()),
		BackupNASURL:    getEnv("BACKUP_NAS_API_URL", ""),
		BackupNASToken:  getEnv("BACKUP_NAS_API_TOKEN", ""),
		BackupGCSBucket: getEnv("BACKUP_GCS_BUCKET", ""),
		BackupGCSPrefix: getEnv("BACKUP_GCS_PREFIX", "kakeibo/"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// GoogleConfigured reports whether a spreadsheet source is set up.
func (c *Config) GoogleConfigured() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.UploadMaxBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid upload limit %d: must be positive", c.UploadMaxBytes))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	if c.SummaryCacheSize < 1 || c.SummaryCacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be between 1 and 10000", c.SummaryCacheSize))
	}
	if c.SummaryCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must be at least 1 second", c.SummaryCacheTTL))
	}
	if c.WarmWorkers < 1 || c.WarmWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid warm workers %d: must be between 1 and 64", c.WarmWorkers))
	}

	if c.BackupEnabled {
		if c.DataBackend != "sqlite" {
			errors = append(errors, "backups require the sqlite backend (set BACKUP_ENABLED=false)")
		}
		if _, err := cron.ParseStandard(c.BackupSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid backup schedule '%s': %v", c.BackupSchedule, err))
		}
		if _, err := time.LoadLocation(c.BackupTimezone); err != nil {
			errors = append(errors, fmt.Sprintf("invalid backup timezone '%s': %v", c.BackupTimezone, err))
		}
		if c.BackupNASURL != "" {
			if u, err := url.Parse(c.BackupNASURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				errors = append(errors, fmt.Sprintf("invalid backup NAS URL '%s': must be http or https", c.BackupNASURL))
			}
		}
		if c.BackupNASURL != "" && c.BackupGCSBucket != "" {
			errors = append(errors, "configure at most one of BACKUP_NAS_API_URL and BACKUP_GCS_BUCKET")
		}
	}

	if c.GoogleConfigured() && c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE is required when GOOGLE_SPREADSHEET_ID is set")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
