// Package config loads the supervisor's environment-driven configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/codesprinters/twillmanager/internal/logger"
)

// Configuration holds every environment-tunable knob consumed by the core.
type Configuration struct {
	ListenAddress string

	DatabaseURL string

	MailFrom       string
	MailMode       string
	SMTPServer     string
	SMTPPort       int
	SMTPLogin      string
	SMTPPassword   string
	SMTPUseTLS     bool

	RedisURL          string
	RedisDB           int
	RedisPassword     string
	RedisMaxRetries   int
	RedisDialTimeout  time.Duration
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration

	NotificationRetryAttempts int
	NotificationRetryDelay    time.Duration
	NotificationQueueName     string

	ManagerPollTimeout time.Duration
	WorkerBinaryPath   string
}

var Config = Configuration{}

// Init loads Config from the environment, applying the teacher's
// parse-with-default convention field by field.
func Init() {
	Config.ListenAddress = getStringWithDefault("LISTEN_ADDRESS", "127.0.0.1:8081")

	if v := os.Getenv("DATABASE_URL"); v != "" {
		Config.DatabaseURL = v
		logger.LogConfigLoad("config", "DATABASE_URL", true, nil)
	} else {
		logger.LogConfigLoad("config", "DATABASE_URL", false, fmt.Errorf("DATABASE_URL is empty"))
	}

	Config.MailFrom = getStringWithDefault("MAIL_FROM", "watchsup@localhost")
	Config.MailMode = getStringWithDefault("MAIL_MODE", "smtp")
	Config.SMTPServer = getStringWithDefault("MAIL_SMTP_SERVER", "localhost")
	Config.SMTPPort = parseIntWithDefault("MAIL_SMTP_PORT", 25)
	Config.SMTPLogin = os.Getenv("MAIL_SMTP_LOGIN")
	Config.SMTPPassword = os.Getenv("MAIL_SMTP_PASSWORD")
	Config.SMTPUseTLS = parseBoolWithDefault("MAIL_SMTP_USETLS", false)

	Config.RedisURL = getStringWithDefault("REDIS_URL", "redis://localhost:6379")
	Config.RedisDB = parseIntWithDefault("REDIS_DB", 2)
	Config.RedisPassword = os.Getenv("REDIS_PASSWORD")
	Config.RedisMaxRetries = parseIntWithDefault("REDIS_MAX_RETRIES", 3)
	Config.RedisDialTimeout = parseDurationWithDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	Config.RedisReadTimeout = parseDurationWithDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	Config.RedisWriteTimeout = parseDurationWithDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)

	Config.NotificationRetryAttempts = parseIntWithDefault("NOTIFICATION_RETRY_ATTEMPTS", 3)
	Config.NotificationRetryDelay = parseDurationWithDefault("NOTIFICATION_RETRY_DELAY", 5*time.Second)
	Config.NotificationQueueName = getStringWithDefault("NOTIFICATION_QUEUE_NAME", "watchsup:notifications")

	Config.ManagerPollTimeout = parseDurationWithDefault("MANAGER_POLL_TIMEOUT", 60*time.Second)
	Config.WorkerBinaryPath = os.Getenv("WORKER_BINARY_PATH")

	logger.LogConfigLoad("config", "configuration", true, nil)
}

func parseDurationWithDefault(envVar string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	logger.LogConfigLoad("config", envVar, false, fmt.Errorf("invalid duration, using default %v", defaultValue))
	return defaultValue
}

func parseIntWithDefault(envVar string, defaultValue int) int {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	logger.LogConfigLoad("config", envVar, false, fmt.Errorf("invalid integer, using default %d", defaultValue))
	return defaultValue
}

func parseBoolWithDefault(envVar string, defaultValue bool) bool {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	logger.LogConfigLoad("config", envVar, false, fmt.Errorf("invalid boolean, using default %v", defaultValue))
	return defaultValue
}

func getStringWithDefault(envVar, defaultValue string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultValue
}
