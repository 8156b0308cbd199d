// Package logger builds the zerolog logger shared by the setstream binaries.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLevel      = "SETSTREAM_LOG_LEVEL"
	EnvFormatJSON = "SETSTREAM_LOG_FORMAT_JSON"
)

// NewLogger configures the global level from SETSTREAM_LOG_LEVEL and returns a
// logger writing to stderr. Output is human readable unless
// SETSTREAM_LOG_FORMAT_JSON is set.
func NewLogger() *zerolog.Logger {
	return New(os.Stderr)
}

// New is NewLogger with an explicit destination.
func New(out io.Writer) *zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(os.Getenv(EnvLevel)))

	var logger zerolog.Logger
	if strings.TrimSpace(os.Getenv(EnvFormatJSON)) == "" {
		output := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}
		output.FormatLevel = func(i any) string {
			return strings.ToUpper(fmt.Sprintf("| %s |", i))
		}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(out).With().Timestamp().Logger()
	}
	return &logger
}

// parseLevel falls back to info for empty or unknown values.
func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
