package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger creates the run logger: text on stderr for the operator and
// JSON lines appended to logFile, one record per per-file outcome.
// consoleLevel filters stderr only; the file always records from level up.
// If the log file cannot be opened the logger writes to stderr only.
// The returned cleanup function closes the file.
func SetupLogger(logFile string, level, consoleLevel slog.Level) (*slog.Logger, func() error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			return SetupLoggerWithWriters(os.Stderr, file, level, consoleLevel), file.Close
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: max(level, consoleLevel)}))
	logger.Error("failed to open log file, using stderr only", "file", logFile)
	return logger, func() error { return nil }
}

// SetupLoggerWithWriters creates a logger with custom writers (for testing).
func SetupLoggerWithWriters(stderr, file io.Writer, level, consoleLevel slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: max(level, consoleLevel)})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}
