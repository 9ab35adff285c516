// Package logging builds the zap logger shared by the server and CLIs.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level string
	// File, when set, receives a rotated JSON copy of every entry.
	File string
	// Console switches stderr output to the human readable encoder.
	Console bool
}

// New returns a logger that writes to stderr. Stdout is reserved for the
// MCP stdio transport and must never carry log lines.
func New(opts Options) *zap.Logger {
	level := ParseLevel(opts.Level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var stderrEncoder zapcore.Encoder
	if opts.Console {
		stderrEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		stderrEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stderrEncoder, zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// ParseLevel maps LOGGING_LEVEL style names (DEBUG, INFO, WARNING, ...) to a
// zap level. Unknown values fall back to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "CRITICAL", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
