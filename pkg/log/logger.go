// Package log configures the zerolog logger shared by the pipeline stages.
//
// Components never reach for a global logger; they receive a zerolog.Logger
// through their options and default to zerolog.Nop().
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"mripatches/pkg/errors"
)

// Field keys used consistently across the pipeline.
const (
	SplitKey     = "split"
	VolumeKey    = "volume"
	AnchorsKey   = "anchors"
	PatchesKey   = "patches"
	BatchesKey   = "batches"
	ClassesKey   = "classes"
	ComponentKey = "component"
)

// Setup builds a logger writing to w at the given level. With console set the
// output is human readable instead of JSON lines. A nil writer means stderr.
func Setup(level string, w io.Writer, console bool) (zerolog.Logger, error) {
	lvl, err := ToLogLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if w == nil {
		w = os.Stderr
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// ToLogLevel maps a configuration level name to a zerolog level.
func ToLogLevel(level string) (zerolog.Level, error) {
	switch level {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, errors.NewConfigError("output.logLevel", "unknown log level "+level)
	}
}

// Component returns a child logger tagged with a component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str(ComponentKey, name).Logger()
}
