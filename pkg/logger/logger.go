package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger

// Init initializes the global slog logger from environment variables.
// CHATLEDGER_LOG_LEVEL selects the level, CHATLEDGER_LOG_SINK may point
// at a file ("file:/path/to/log"), CHATLEDGER_LOG_FORMAT selects
// text|json. Missing or invalid values fall back to text at Info on
// stdout.
func Init() {
	InitWith("", "")
}

// InitWith initializes the global logger honoring the provided level and
// format strings; empty values fall back to the environment-based
// behavior of Init.
func InitWith(level, format string) {
	sink := os.Getenv("CHATLEDGER_LOG_SINK")
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("CHATLEDGER_LOG_LEVEL")))
	}
	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	fm := strings.ToLower(strings.TrimSpace(format))
	if fm == "" {
		fm = strings.ToLower(strings.TrimSpace(os.Getenv("CHATLEDGER_LOG_FORMAT")))
	}

	out := os.Stdout
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			out = f
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		}
	}
	opts := &slog.HandlerOptions{Level: lv}
	if fm == "json" {
		Log = slog.New(slog.NewJSONHandler(out, opts))
		return
	}
	Log = slog.New(slog.NewTextHandler(out, opts))
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
