package logger

import (
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	Logger zerolog.Logger

	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"(password|pwd|secret|token|key|auth|bearer|authorization)":\s*"(\\.|[^"\\])*"`),
		regexp.MustCompile(`(?i)(password|pwd|secret|token|key|auth|bearer|authorization)[:=]\s*\S+`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9+/=_-]{20,}`),
		regexp.MustCompile(`\b[a-zA-Z0-9+/]{40,}={0,2}\b`),
	}
)

type LogLevel string

const (
	TraceLevel LogLevel = "trace"
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

type LogFormat string

const (
	JSONFormat    LogFormat = "json"
	ConsoleFormat LogFormat = "console"
)

// Config holds the logger configuration.
type Config struct {
	Level      LogLevel
	Format     LogFormat
	AppName    string
	TimeFormat string
}

func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		Format:     JSONFormat,
		AppName:    "watchsup",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global logger with the given configuration.
func Init(config *Config) error {
	switch config.Level {
	case TraceLevel:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case DebugLevel:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case WarnLevel:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case ErrorLevel:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case FatalLevel:
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	zerolog.TimeFieldFormat = config.TimeFormat

	var output io.Writer = os.Stdout
	if config.Format == ConsoleFormat {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(output).
		Level(zerolog.GlobalLevel()).
		With().
		Timestamp().
		Str("service", config.AppName).
		Logger()

	log.Logger = Logger
	return nil
}

// InitFromEnv initializes the logger from environment variables.
func InitFromEnv(appName string) error {
	config := DefaultConfig()
	config.AppName = appName

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = LogLevel(strings.ToLower(level))
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = LogFormat(strings.ToLower(format))
	}

	return Init(config)
}

// SanitizeString removes sensitive data from log messages.
func SanitizeString(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.Contains(match, `":`) {
				parts := strings.SplitN(match, `":`, 2)
				if len(parts) == 2 {
					return parts[0] + `": "[******]"`
				}
			}
			if strings.Contains(match, "=") {
				parts := strings.SplitN(match, "=", 2)
				if len(parts) == 2 {
					return parts[0] + "=[******]"
				}
			}
			if strings.Contains(match, ":") {
				parts := strings.SplitN(match, ":", 2)
				if len(parts) == 2 {
					return parts[0] + ": [******]"
				}
			}
			return "[******]"
		})
	}
	return result
}

// SanitizeConnectionURL strips userinfo credentials from a DSN-shaped string.
func SanitizeConnectionURL(raw string) string {
	if i := strings.Index(raw, "@"); i != -1 {
		if scheme := strings.Index(raw, "://"); scheme != -1 && scheme < i {
			return raw[:scheme+3] + "[******]" + raw[i:]
		}
	}
	return raw
}

// ComponentLogger creates a logger scoped to a named component.
func ComponentLogger(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

func Trace() *zerolog.Event { return Logger.Trace() }
func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }
func Fatal() *zerolog.Event { return Logger.Fatal() }
