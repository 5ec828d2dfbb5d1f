package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type Level int

const (
	LevelDebug Level = iota - 4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type Config struct {
	Level      Level
	Format     string // "json", "text", "dev"
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

type logger struct {
	slog   *slog.Logger
	config *Config
}

// Provider credentials must never reach the log output. These patterns cover
// the query-string and header shapes used by the Steam, Xbox, GOG, Epic and
// RetroAchievements clients.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|key|token|secret|password|auth)["\s]*[:=]["\s]*([^\s"&]+)`),
	regexp.MustCompile(`(?i)authorization:\s*bearer\s+([^\s]+)`),
	regexp.MustCompile(`(?i)[?&](key|z|y|auth_token)=([^\s"&]+)`),
}

// NewLogger creates a new structured logger with the given configuration
func NewLogger(config *Config) Logger {
	if config == nil {
		config = &Config{
			Level:      LevelInfo,
			Format:     "text",
			Output:     os.Stdout,
			AddSource:  false,
			TimeFormat: time.RFC3339,
		}
	}

	if config.Output == nil {
		config.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     slog.Level(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(config.Output, opts)
	case "dev":
		handler = newDevHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &logger{
		slog:   slog.New(handler),
		config: config,
	}
}

func (l *logger) Debug(msg string, args ...any) {
	l.slog.Debug(l.sanitize(msg), l.sanitizeArgs(args)...)
}

func (l *logger) Info(msg string, args ...any) {
	l.slog.Info(l.sanitize(msg), l.sanitizeArgs(args)...)
}

func (l *logger) Warn(msg string, args ...any) {
	l.slog.Warn(l.sanitize(msg), l.sanitizeArgs(args)...)
}

func (l *logger) Error(msg string, args ...any) {
	l.slog.Error(l.sanitize(msg), l.sanitizeArgs(args)...)
}

func (l *logger) With(args ...any) Logger {
	return &logger{
		slog:   l.slog.With(l.sanitizeArgs(args)...),
		config: l.config,
	}
}

func (l *logger) sanitize(msg string) string {
	for _, pattern := range sensitivePatterns {
		msg = pattern.ReplaceAllStringFunc(msg, func(match string) string {
			parts := strings.SplitN(match, ":", 2)
			if len(parts) == 2 {
				return parts[0] + ": [REDACTED]"
			}
			parts = strings.SplitN(match, "=", 2)
			if len(parts) == 2 {
				return parts[0] + "=[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return msg
}

func (l *logger) sanitizeArgs(args []any) []any {
	sanitized := make([]any, len(args))
	for i, arg := range args {
		if str, ok := arg.(string); ok {
			sanitized[i] = l.sanitize(str)
		} else {
			sanitized[i] = arg
		}
	}
	return sanitized
}

// devHandler is a compact human-readable handler for local development.
type devHandler struct {
	opts   *slog.HandlerOptions
	output io.Writer
}

func newDevHandler(output io.Writer, opts *slog.HandlerOptions) *devHandler {
	return &devHandler{opts: opts, output: output}
}

func (h *devHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *devHandler) Handle(_ context.Context, record slog.Record) error {
	levelStr := strings.ToUpper(record.Level.String())

	var levelColor string
	switch record.Level {
	case slog.LevelDebug:
		levelColor = "\033[36m"
	case slog.LevelInfo:
		levelColor = "\033[32m"
	case slog.LevelWarn:
		levelColor = "\033[33m"
	case slog.LevelError:
		levelColor = "\033[31m"
	default:
		levelColor = "\033[0m"
	}

	line := fmt.Sprintf("%s[%s %s]\033[0m %s",
		levelColor, record.Time.Format("15:04:05"), levelStr, record.Message)

	record.Attrs(func(attr slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", attr.Key, attr.Value)
		return true
	})

	_, err := h.output.Write([]byte(line + "\n"))
	return err
}

func (h *devHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *devHandler) WithGroup(name string) slog.Handler       { return h }

// Global logger instance
var defaultLogger Logger

// SetDefault sets the default global logger
func SetDefault(l Logger) {
	defaultLogger = l
}

// Default returns the default global logger
func Default() Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// FiberMiddleware returns Fiber middleware for request logging.
func FiberMiddleware(logger Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		requestID := uuid.NewString()
		c.Locals("request_id", requestID)

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		logArgs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"request_id", requestID,
			"ip", c.IP(),
		}

		msg := fmt.Sprintf("%s %s - %d", c.Method(), c.Path(), status)

		switch {
		case status >= 500:
			logger.Error(msg, logArgs...)
		case status >= 400:
			logger.Warn(msg, logArgs...)
		default:
			logger.Info(msg, logArgs...)
		}

		return err
	}
}
