// Package logger sets up the process-wide structured logger for the
// codejail CLI: text output to stdout (and optionally a log file), with a
// shortened timestamp and a helper for tagging every line in a job's
// lifetime with its slug.
package logger

import (
	"io"
	"log/slog"
	"os"
)

var Log *slog.Logger

// Init initializes the global logger. The proxy helper subcommand never
// calls this -- it builds its own in-memory capture handler instead, since
// its log lines are shipped back to the host rather than written locally.
func Init(level string, logFile string) error {
	logLevel := parseLevel(level)

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)

	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// ForJob returns a logger that tags every record with the given job slug,
// so a single job's lines can be grepped out of a busy log stream.
func ForJob(slug string) *slog.Logger {
	if Log == nil {
		return slog.Default().With("slug", slug)
	}
	return Log.With("slug", slug)
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}
