// Package logger provides the process-wide leveled logger.
//
// Log lines go to both stdout and a rotated file in the platform's log
// directory. The level is set once at startup from the --log-level flag;
// messages below the configured level are discarded.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const appName = "ProxyCat"

type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	level  = LevelInfo
	logger = log.New(os.Stdout, "", log.LstdFlags)
)

// ParseLevel maps a --log-level flag value to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Setup configures the logger to write to stdout and a rotated log file.
func Setup(l Level) error {
	level = l

	logsDir, err := getLogsDir(appName)
	if err != nil {
		return fmt.Errorf("get logs directory: %w", err)
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logsDir, "application.log"),
		MaxSize:    5,
		MaxBackups: 5,
		MaxAge:     1,
		Compress:   true,
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, fileLogger))

	return nil
}

func logf(l Level, prefix, format string, args ...any) {
	if l > level {
		return
	}
	logger.Printf(prefix+" "+format, args...)
}

func Error(format string, args ...any) { logf(LevelError, "ERROR:", format, args...) }
func Warn(format string, args ...any)  { logf(LevelWarn, "WARN:", format, args...) }
func Info(format string, args ...any)  { logf(LevelInfo, "INFO:", format, args...) }
func Debug(format string, args ...any) { logf(LevelDebug, "DEBUG:", format, args...) }
func Trace(format string, args ...any) { logf(LevelTrace, "TRACE:", format, args...) }

func getLogsDir(appName string) (string, error) {
	var path string
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		path = filepath.Join(os.Getenv("LOCALAPPDATA"), appName, "Logs")
	case "darwin":
		path = filepath.Join(homeDir, "Library", "Logs", appName)
	default:
		path = filepath.Join(homeDir, ".local", "share", strings.ToLower(appName), "logs")
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	return path, nil
}
