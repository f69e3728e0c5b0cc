package logger

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// GinLogger logs each HTTP request with structured fields.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Msg("request handled")
	}
}

// SecurityMiddleware logs suspicious-looking requests (long paths, no user agent).
func SecurityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(c.Request.URL.Path) > 2048 {
			Logger.Warn().Str("path", SanitizeString(c.Request.URL.Path)).Msg("oversized request path")
		}
		if c.Request.UserAgent() == "" {
			Logger.Warn().Str("path", SanitizeString(c.Request.URL.Path)).Msg("request without user agent")
		}
		c.Next()
	}
}

// LogBusinessOperation logs a CRUD-shaped operation against a named entity.
func LogBusinessOperation(c *gin.Context, component, operation, entityType, entityID string, success bool, err error) {
	l := ComponentLogger(component)
	event := l.Info()
	if !success {
		event = l.Error()
	}
	event.
		Str("operation", operation).
		Str("entity_type", entityType).
		Str("entity_id", entityID).
		Str("client_ip", c.ClientIP()).
		Bool("success", success)
	if err != nil {
		event.Err(err)
	}
	event.Msg(fmt.Sprintf("%s %s: %s", operation, entityType, entityID))
}

// LogConfigLoad logs a configuration field load: a debug line on success,
// a warning on failure. It never exits the process.
func LogConfigLoad(component, configKey string, success bool, err error) {
	l := ComponentLogger(component)
	if success {
		l.Debug().Str("config_key", configKey).Msg("configuration value loaded")
		return
	}
	l.Warn().Str("config_key", configKey).Err(err).Msg("configuration value missing, using default")
}

// LogServiceStart logs service startup.
func LogServiceStart(serviceName, version, listenAddress string) {
	Logger.Info().
		Str("service", serviceName).
		Str("version", version).
		Str("listen_address", listenAddress).
		Msg(fmt.Sprintf("%s starting on %s", serviceName, listenAddress))
}

// LogServiceStop logs service shutdown.
func LogServiceStop(serviceName, reason string) {
	Logger.Info().
		Str("service", serviceName).
		Str("reason", reason).
		Msg(fmt.Sprintf("%s shutting down: %s", serviceName, reason))
}
