// Package cliutil holds the logging and [OK]/[WARN]/[ERR] output
// conventions shared by every cmd/ entry point, generalizing the teacher's
// main.go setupLogger (file-based slog handler for a long-lived
// server) to also cover one-shot batch commands that log to stderr
// (spec §7 expansion).
package cliutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// NewStderrLogger builds the logger used by one-shot batch commands
// (index-build, index-merge, search, rerank): a text handler writing
// to stderr, matching the teacher's log.SetOutput(os.Stderr) rule for
// processes that must keep stdout clean.
func NewStderrLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewFileLogger builds the logger used by the long-lived serve
// command: a text handler writing to a date-stamped debug file inside
// cacheDir, exactly as the teacher's main.go setupLogger does for the
// MCP stdio server. The returned closer must be deferred by the
// caller; on failure it falls back to a stderr logger, same as the
// teacher's "Warning: failed to setup file logger" path.
func NewFileLogger(cacheDir string) (logger *slog.Logger, closer func() error, err error) {
	if mkErr := os.MkdirAll(cacheDir, 0o755); mkErr != nil {
		return NewStderrLogger(), func() error { return nil }, fmt.Errorf("create cache dir %s: %w", cacheDir, mkErr)
	}
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(cacheDir, fmt.Sprintf("debug-%s.txt", date))
	f, openErr := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if openErr != nil {
		return NewStderrLogger(), func() error { return nil }, fmt.Errorf("open log file %s: %w", logPath, openErr)
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), f.Close, nil
}

// OK logs a final summary record and prints the user-visible "[OK]"
// line the spec requires for successful batch commands (spec §7).
func OK(logger *slog.Logger, msg string, args ...any) {
	logger.Info(msg, args...)
	fmt.Fprintf(os.Stdout, "[OK] %s\n", msg)
}

// Warn logs a recoverable condition and prints the user-visible
// "[WARN]" line; the caller continues.
func Warn(logger *slog.Logger, msg string, args ...any) {
	logger.Warn(msg, args...)
	fmt.Fprintf(os.Stderr, "[WARN] %s\n", msg)
}

// Fatal logs a fatal error, prints the user-visible "[ERR]" line, and
// exits non-zero. It never calls log.Fatal directly, so the "[ERR]"
// line is always backed by a structured slog record first (spec §7).
func Fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "[ERR] %s: %v\n", msg, err)
	os.Exit(1)
}
