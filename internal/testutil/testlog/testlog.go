// Package testlog hands package tests a scoped debug logger.
package testlog

import (
	"io"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lotproto/lot/internal/logging"
)

// Start returns a debug logger tagged with the test name. Set
// LOT_TEST_LOG=1 to see engine output while debugging a test.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	var w io.Writer = io.Discard
	if os.Getenv("LOT_TEST_LOG") != "" {
		w = os.Stderr
	}
	return logging.Tests(w).With().Str("test", t.Name()).Logger()
}
