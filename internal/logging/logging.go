// Package logging configures the process-wide zerolog logger for the
// lotctl binaries and hands scoped loggers to the engine.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "LOT_LOG_LEVEL"
	EnvLogTimestamp = "LOT_LOG_TIMESTAMP"
	EnvLogNoColor   = "LOT_LOG_NOCOLOR"
)

// Runtime builds the console logger used by the binaries. Level and
// formatting honor the LOT_LOG_* environment overrides.
func Runtime(app string) zerolog.Logger {
	level := zerolog.InfoLevel
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    envBool(EnvLogNoColor),
	}
	logger := zerolog.New(output).Level(level).With().Str("app", app)
	if !envBoolSet(EnvLogTimestamp) || envBool(EnvLogTimestamp) {
		logger = logger.Timestamp()
	}
	return logger.Logger()
}

// Tests builds a quiet debug logger for package tests. Output goes to w
// (typically io.Discard or a testing writer).
func Tests(w io.Writer) zerolog.Logger {
	if w == nil {
		w = io.Discard
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).Level(zerolog.DebugLevel)
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func envBoolSet(key string) bool {
	_, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil
}
