package logging

import (
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/aimerfeng/SkillExchange/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env, service string) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// maxLoggedFieldLen caps client controlled request fields in access logs
const maxLoggedFieldLen = 256

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("user_id", c.GetString("user_id")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", SanitizeForLog(raw, maxLoggedFieldLen)).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", SanitizeForLog(c.Request.UserAgent(), maxLoggedFieldLen)).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogTransition logs an exchange request status change
func LogTransition(requestID, actorID, from, to string) {
	log.Info().
		Str("exchange_request_id", requestID).
		Str("actor_id", actorID).
		Str("from", from).
		Str("to", to).
		Msg("Exchange request transition")
}

// LogRecompute logs the outcome of a rating aggregate recomputation
func LogRecompute(userID string, avg string, count int, err error) {
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Rating aggregate recomputation failed")
		return
	}
	log.Debug().
		Str("user_id", userID).
		Str("avg_rating", avg).
		Int("ratings_count", count).
		Msg("Rating aggregate recomputed")
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(eventType, userID, clientIP, details string) {
	log.Warn().
		Str("event_type", eventType).
		Str("user_id", userID).
		Str("client_ip", clientIP).
		Str("details", details).
		Msg("Security event")
}

// LogError logs an error with context
func LogError(err error, requestID, correlationID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("correlation_id", correlationID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}

// SanitizeForLog truncates user supplied text to maxLen characters before
// it is logged. Truncation never splits a UTF-8 sequence.
func SanitizeForLog(data string, maxLen int) string {
	if utf8.RuneCountInString(data) <= maxLen {
		return data
	}
	runes := []rune(data)
	return string(runes[:maxLen]) + "...[truncated]"
}
