// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// logFile is the open file sink, when file logging is on.
var logFile *os.File

// Level aliases zerolog's level type.
type Level = zerolog.Level

// Log levels re-exported for callers that don't import zerolog directly.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config describes how the global logger should behave.
type Config struct {
	// Level is the minimum level that gets emitted.
	Level Level
	// Output receives log lines. Defaults to os.Stderr.
	Output io.Writer
	// Pretty switches on the human-readable console writer.
	Pretty bool
	// TimeFormat overrides the timestamp layout. Defaults to RFC3339.
	TimeFormat string
	// LogToFile additionally writes to a timestamped file in LogDir.
	LogToFile bool
	// LogDir is where log files land. Defaults to /tmp.
	LogDir string
}

// DefaultConfig is stderr, info level, machine-readable.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
		LogDir:     "/tmp",
	}
}

// Init (re)builds the global logger from cfg.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "/tmp"
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	var console io.Writer = cfg.Output
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: cfg.TimeFormat,
		}
	}
	writers := []io.Writer{console}

	if cfg.LogToFile {
		if logFile != nil {
			logFile.Close()
		}
		stamp := time.Now().Format("20060102-150405")
		logPath := filepath.Join(cfg.LogDir, fmt.Sprintf("orchestrator-%s.log", stamp))
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logFile = f
			writers = append(writers, f)
		}
	}

	output := writers[0]
	if len(writers) > 1 {
		output = zerolog.MultiLevelWriter(writers...)
	}

	Logger = zerolog.New(output).
		Level(cfg.Level).
		With().
		Timestamp().
		Logger()
}

// GetLogFilePath returns the active log file path, or "" when logging
// only to the console.
func GetLogFilePath() string {
	if logFile != nil {
		return logFile.Name()
	}
	return ""
}

// Close releases the file sink if one is open.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// ParseLevel reads a level name case-insensitively (DEBUG, INFO, WARN,
// ERROR, FATAL); anything unrecognized falls back to info.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Debug starts a debug-level event on the global logger.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info starts an info-level event on the global logger.
func Info() *zerolog.Event { return Logger.Info() }

// Warn starts a warn-level event on the global logger.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error starts an error-level event on the global logger.
func Error() *zerolog.Event { return Logger.Error() }

// Fatal starts a fatal-level event; Msg/Send will exit the process.
func Fatal() *zerolog.Event { return Logger.Fatal() }

// With opens a child-logger context on the global logger.
func With() zerolog.Context { return Logger.With() }

func init() {
	Init(DefaultConfig())
}
