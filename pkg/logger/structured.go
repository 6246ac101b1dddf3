package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var zlog zerolog.Logger

// InitStructured initializes the structured zerolog logger
func InitStructured(env string) {
	var w io.Writer

	if env == "development" || env == "dev" || env == "local" {
		// Pretty console output for development
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	} else {
		// JSON output for production (machine-readable)
		w = os.Stdout
	}

	zlog = zerolog.New(w).With().
		Timestamp().
		Str("service", "chat-backend").
		Logger()

	zerolog.TimeFieldFormat = time.RFC3339
}

// GetLogger returns the global zerolog logger
func GetLogger() *zerolog.Logger {
	return &zlog
}

// WithRequestID returns a logger with request_id field
func WithRequestID(requestID string) zerolog.Logger {
	return zlog.With().Str("request_id", requestID).Logger()
}

// WithRoomID returns a logger with room_id field
func WithRoomID(roomID string) zerolog.Logger {
	return zlog.With().Str("room_id", roomID).Logger()
}

// Info logs a printf-style info message (startup/wiring convenience)
func Info(format string, args ...interface{}) {
	zlog.Info().Msg(fmt.Sprintf(format, args...))
}

// Error logs a printf-style error message
func Error(format string, args ...interface{}) {
	zlog.Error().Msg(fmt.Sprintf(format, args...))
}
