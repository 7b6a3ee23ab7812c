// Package logger configures the process-wide slog default.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const logFileName = "server.log"

type Config struct {
	// DataDir receives server.log outside dev mode. Empty disables the file.
	DataDir string
	DevMode bool
	// Level is one of debug, info, warn, error. Dev mode defaults to debug.
	Level string
}

// Init installs the default logger. Dev mode logs text to stderr; otherwise
// JSON goes to stderr and server.log.
func Init(cfg Config) {
	level := slog.LevelInfo
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	if cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			slog.Warn("invalid log level, using default", "value", cfg.Level, "default", level)
		} else {
			level = parsed
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.DevMode {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return
	}

	var w io.Writer = os.Stderr
	if cfg.DataDir != "" {
		f, err := openLogFile(cfg.DataDir)
		if err != nil {
			slog.Warn("log file unavailable, logging to stderr only", "error", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
}

func openLogFile(dataDir string) (*os.File, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dataDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Truncate shortens s to at most n runes for log output.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
