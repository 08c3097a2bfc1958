// Package logging configures the zap logger used by the command line tool.
package logging

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultConfig logs JSON to stderr, keeping stdout free for query results.
func DefaultConfig() zap.Config {
	conf := zap.NewProductionConfig()
	conf.Sampling = nil
	conf.OutputPaths = []string{"stderr"}
	conf.EncoderConfig.TimeKey = "time"
	conf.EncoderConfig.LevelKey = "severity"
	conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	conf.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return conf
}

// ParseLevel accepts a level name or its numeric value.
func ParseLevel(l string) (zapcore.Level, error) {
	l = strings.ToLower(strings.TrimSpace(l))
	switch l {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	level, err := strconv.ParseInt(l, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown log level %q", l)
	}
	if level < int64(zapcore.DebugLevel) || level > int64(zapcore.FatalLevel) {
		return 0, fmt.Errorf("log level %d out of range", level)
	}
	return zapcore.Level(level), nil
}

// New builds a logger at the named level.
func New(level string) (*zap.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	conf := DefaultConfig()
	conf.Level = zap.NewAtomicLevelAt(l)
	return conf.Build()
}
