package logging

import (
	"io"
	"os"
	"time"

	"github.com/aimerfeng/scribe/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
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
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "scribe").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("user_id", c.GetString("user_id")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// UsageDecisionLogEntry describes one usage gate outcome
type UsageDecisionLogEntry struct {
	RequestID string
	UserID    string
	Allowed   bool
	Pro       bool
	Reason    string
	Count     int
	Limit     int
}

// LogUsageDecision logs a usage gate decision
func LogUsageDecision(entry *UsageDecisionLogEntry) {
	event := log.Debug()
	if !entry.Allowed {
		event = log.Info()
	}

	event.
		Str("request_id", entry.RequestID).
		Str("user_id", entry.UserID).
		Bool("allowed", entry.Allowed).
		Bool("pro", entry.Pro).
		Str("reason", entry.Reason).
		Int("count", entry.Count).
		Int("limit", entry.Limit).
		Msg("Usage decision")
}

// GenerationLogEntry represents a structured log entry for LLM calls
type GenerationLogEntry struct {
	RequestID    string
	UserID       string
	Provider     string
	Model        string
	PromptChars  int
	OutputTokens int
	Latency      time.Duration
	Status       string
	ErrorCode    string
}

// LogGeneration logs a generation call with structured data
func LogGeneration(entry *GenerationLogEntry) {
	event := log.Info()
	if entry.Status == "error" {
		event = log.Error()
	}

	event.
		Str("request_id", entry.RequestID).
		Str("user_id", entry.UserID).
		Str("provider", entry.Provider).
		Str("model", entry.Model).
		Int("prompt_chars", entry.PromptChars).
		Int("output_tokens", entry.OutputTokens).
		Dur("latency", entry.Latency).
		Str("status", entry.Status).
		Str("error_code", entry.ErrorCode).
		Msg("Generation call")
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
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}

// SanitizeForLog truncates long strings before they reach the log
func SanitizeForLog(data string, maxLen int) string {
	if len(data) > maxLen {
		return data[:maxLen] + "...[truncated]"
	}
	return data
}
