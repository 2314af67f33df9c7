package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ServerPort string
	ServerHost string

	APIKey         string
	PayloadAESKey  string
	APICORSOrigins []string

	APIRateLimitRequests   int
	APIRateLimitWindowMins int

	// Response policy applied when alternate-account candidates are found.
	// One of: reject, challenge, escalate, approve.
	DetectionPolicy string
	StandardRoleID  string
	StaffChannelID  string

	PlatformBaseURL string
	PlatformToken   string

	DetectorConcurrency  int
	DetectorPrefilter    bool
	DetectionTimeoutSecs int

	Argon2Time         uint32
	Argon2Memory       uint32
	Argon2Threads      uint8
	Argon2KeyLength    uint32
	Argon2SaltLength   int
	Argon2TargetPrefix string

	ChallengeExpiryMinutes       int
	ChallengeCleanupIntervalMins int

	LogLevel string
}

func Load() (*Config, error) {
	godotenv.Load("config.env")

	cfg := &Config{
		DBHost:     getEnvString("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBName:     getEnvString("DB_NAME", "altguard_db"),
		DBUser:     getEnvString("DB_USER", "postgres"),
		DBPassword: getEnvString("DB_PASSWORD", ""),
		DBSSLMode:  getEnvString("DB_SSL_MODE", "disable"),

		ServerPort: getEnvString("SERVER_PORT", "8080"),
		ServerHost: getEnvString("SERVER_HOST", "localhost"),

		APIKey:         getEnvString("API_KEY", ""),
		PayloadAESKey:  getEnvString("PAYLOAD_AES_KEY", ""),
		APICORSOrigins: getEnvStringSlice("API_CORS_ORIGINS", []string{"*"}),

		APIRateLimitRequests:   getEnvInt("API_RATE_LIMIT_REQUESTS", 30),
		APIRateLimitWindowMins: getEnvInt("API_RATE_LIMIT_WINDOW_MINUTES", 1),

		DetectionPolicy: getEnvString("DETECTION_POLICY", "escalate"),
		StandardRoleID:  getEnvString("STANDARD_ROLE_ID", ""),
		StaffChannelID:  getEnvString("STAFF_CHANNEL_ID", ""),

		PlatformBaseURL: getEnvString("PLATFORM_BASE_URL", "http://localhost:9090"),
		PlatformToken:   getEnvString("PLATFORM_TOKEN", ""),

		DetectorConcurrency:  getEnvInt("DETECTOR_CONCURRENCY", 8),
		DetectorPrefilter:    getEnvBool("DETECTOR_PREFILTER", true),
		DetectionTimeoutSecs: getEnvInt("DETECTION_TIMEOUT_SECONDS", 30),

		Argon2Time:         uint32(getEnvInt("ARGON2_TIME", 3)),
		Argon2Memory:       uint32(getEnvInt("ARGON2_MEMORY", 65536)),
		Argon2Threads:      uint8(getEnvInt("ARGON2_THREADS", 1)),
		Argon2KeyLength:    uint32(getEnvInt("ARGON2_KEY_LENGTH", 32)),
		Argon2SaltLength:   getEnvInt("ARGON2_SALT_LENGTH", 16),
		Argon2TargetPrefix: getEnvString("ARGON2_TARGET_PREFIX", "000"),

		ChallengeExpiryMinutes:       getEnvInt("CHALLENGE_EXPIRY_MINUTES", 30),
		ChallengeCleanupIntervalMins: getEnvInt("CHALLENGE_CLEANUP_INTERVAL_MINUTES", 10),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
