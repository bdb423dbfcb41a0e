package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Outbound mail provider
	MailerBaseURL string
	MailerTimeout time.Duration

	// Directory (user/role) service
	DirectoryBaseURL string
	DirectoryTimeout time.Duration

	// Recipient resolution
	ResolveTimeout time.Duration
	// StaticCC maps a module tag to its default CC list, e.g.
	// "leave=hr@corp.example;performance=hr@corp.example,admin@corp.example".
	// Loaded once here and passed by reference into the resolver.
	StaticCC map[string][]string

	// Dispatcher
	DispatchWorkers  int
	DispatchInterval time.Duration
	DispatchBatch    int
	ClaimLease       time.Duration
	MaxRetries       int

	// Retry backoff: delay = RetryBase * 2^retry_count, capped at RetryMax.
	RetryBase time.Duration
	RetryMax  time.Duration

	// Rate limiting: maximum outbound sends per second
	MailRateLimit int
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		MailerBaseURL: getEnv("MAILER_BASE_URL", "http://localhost:8025/send"),
		MailerTimeout: getDuration("MAILER_TIMEOUT", 10*time.Second),

		DirectoryBaseURL: getEnv("DIRECTORY_BASE_URL", "http://localhost:8090"),
		DirectoryTimeout: getDuration("DIRECTORY_TIMEOUT", 3*time.Second),

		ResolveTimeout: getDuration("RESOLVE_TIMEOUT", 5*time.Second),
		StaticCC:       getKeyedLists("STATIC_CC"),

		DispatchWorkers:  getInt("DISPATCH_WORKERS", 3),
		DispatchInterval: getDuration("DISPATCH_INTERVAL", 5*time.Second),
		DispatchBatch:    getInt("DISPATCH_BATCH", 50),
		ClaimLease:       getDuration("CLAIM_LEASE", 2*time.Minute),
		MaxRetries:       getInt("MAX_RETRIES", 3),

		RetryBase: getDuration("RETRY_BASE", 30*time.Second),
		RetryMax:  getDuration("RETRY_MAX", 30*time.Minute),

		MailRateLimit: getInt("MAIL_RATE_LIMIT", 50),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getKeyedLists parses "leave=a@x,b@x;policy=c@x" into a tag-keyed list map.
// Malformed segments are skipped.
func getKeyedLists(key string) map[string][]string {
	out := make(map[string][]string)
	for _, seg := range strings.Split(os.Getenv(key), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(seg), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		var addrs []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		if len(addrs) > 0 {
			out[k] = addrs
		}
	}
	return out
}
