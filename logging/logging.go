package logging

import (
	"log/slog"
	"os"
)

// Logger is the narrow structured-logging surface used across the
// service. Key-value pairs follow the slog convention.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, kv ...any) { s.l.Debug(msg, kv...) }
func (s *SlogLogger) Info(msg string, kv ...any)  { s.l.Info(msg, kv...) }
func (s *SlogLogger) Warn(msg string, kv ...any)  { s.l.Warn(msg, kv...) }
func (s *SlogLogger) Error(msg string, kv ...any) { s.l.Error(msg, kv...) }

// CreateAppLogger builds the process logger: JSON in prod, text with
// debug level everywhere else.
func CreateAppLogger(env string) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// TrimID shortens a capability id for logging. Session ids are bearer
// tokens and must never appear whole in log output.
func TrimID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
