// Package config provides centralized default values for AegisGate
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

// loadEnvFile loads environment variables from .env file
func loadEnvFile() {
	envLoaded.Do(func() {
		loadEnvFileOnce()
	})
}

func loadEnvFileOnce() {
	file, err := os.Open(".env")
	if err != nil {
		// .env file is optional, don't error if it doesn't exist
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	PublicBaseURL      string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Database
	DBDriver                 string
	DBPath                   string
	DBAuthToken              string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int

	// Token lifecycle
	TokenTTL      time.Duration
	SweepInterval time.Duration

	// Submission rate limiting (per client IP)
	RateWindow         time.Duration
	RateLimitPerWindow int

	// Quarantine policy
	QuarantineThreshold int
	QuarantineHours     int
	AutoBan             bool
	AutoBanThreshold    int

	// Profiles
	ProfileHistoryCap int

	// Issuance surge detection
	SurgeWindow    time.Duration
	SurgeThreshold int

	// Decision engine
	EngineMode    string
	EngineURL     string
	EngineTimeout time.Duration

	// Secrets
	VerifySecret      string
	JWTSecret         string
	AdminPasswordHash string

	// Email alerts (optional)
	ResendAPIKey string
	AlertFrom    string
	AlertTo      string

	// Observability
	SlowQueryThreshold time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	PublicBaseURL = getEnvString("PUBLIC_BASE_URL", "http://localhost:8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBPath = getEnvString("DB_PATH", "aegisgate.db")
	DBAuthToken = getEnvString("DB_AUTH_TOKEN", "")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)

	// Token lifecycle
	TokenTTL = getEnvDuration("TOKEN_TTL", 10*time.Minute)
	SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Minute)

	// Submission rate limiting
	RateWindow = getEnvDuration("RATE_WINDOW", 10*time.Second)
	RateLimitPerWindow = getEnvInt("RATE_LIMIT_PER_WINDOW", 3)

	// Quarantine policy
	QuarantineThreshold = getEnvInt("QUARANTINE_THRESHOLD", 60)
	QuarantineHours = getEnvInt("QUARANTINE_HOURS", 24)
	AutoBan = getEnvBool("AUTO_BAN", false)
	AutoBanThreshold = getEnvInt("AUTO_BAN_THRESHOLD", 95)

	// Profiles
	ProfileHistoryCap = getEnvInt("PROFILE_HISTORY_CAP", 5)

	// Issuance surge detection
	SurgeWindow = getEnvDuration("SURGE_WINDOW", 30*time.Second)
	SurgeThreshold = getEnvInt("SURGE_THRESHOLD", 3)

	// Decision engine
	EngineMode = getEnvString("ENGINE_MODE", "local")
	EngineURL = getEnvString("ENGINE_URL", "")
	EngineTimeout = getEnvDuration("ENGINE_TIMEOUT", 6*time.Second)

	// Secrets
	VerifySecret = getEnvString("VERIFY_SECRET", "please_set_verify_secret")
	JWTSecret = getEnvString("JWT_SECRET", "")
	AdminPasswordHash = getEnvString("ADMIN_PASSWORD_HASH", "")

	// Email alerts
	ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	AlertFrom = getEnvString("ALERT_FROM", "")
	AlertTo = getEnvString("ALERT_TO", "")

	// Observability
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 100*time.Millisecond)
}
