package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	MaxLeavePerUser int
	SessionTTL      time.Duration
	BcryptCost      int

	NotifyProvider string
	NotifyTimeout  time.Duration

	RateLimitPerMinute        int
	RateLimitBurst            int
	SessionRateLimitPerMinute int
	SessionRateLimitBurst     int

	AdminName     string
	AdminEmail    string
	AdminPassword string
}

func Load() Config {
	// A missing .env file is fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),

		MaxLeavePerUser: readInt("MAX_LEAVE_PER_USER", 20),
		SessionTTL:      readDurationSeconds("SESSION_TTL_SECONDS", 8*60*60),
		BcryptCost:      readInt("BCRYPT_COST", 0),

		NotifyProvider: os.Getenv("NOTIFY_PROVIDER"),
		NotifyTimeout:  readDurationSeconds("NOTIFY_TIMEOUT_SECONDS", 10),

		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		SessionRateLimitPerMinute: readInt("SESSION_RATE_LIMIT_PER_MIN", 300),
		SessionRateLimitBurst:     readInt("SESSION_RATE_LIMIT_BURST", 60),

		AdminName:     readString("ADMIN_NAME", "Administrator"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

func readString(key, fallback string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	return raw
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
