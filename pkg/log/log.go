package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Field names shared by every strata log line
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldResource  = "resource"
)

// Level is a log level as given on the command line
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global level and rebuilds Logger. Console output is
// the default; JSON is for log shippers.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps l to a zerolog level. Unknown levels mean info.
func ParseLevel(l Level) zerolog.Level {
	if zl, ok := levels[l]; ok {
		return zl
	}
	return zerolog.InfoLevel
}

// WithComponent derives a child of Logger tagged with the emitting package
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str(FieldComponent, component).Logger()
}

// WithRun tags logger with a convergence run ID
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str(FieldRunID, runID).Logger()
}

// WithResource tags logger with a resource identity such as "package[ceph-osd]"
func WithResource(logger zerolog.Logger, id string) zerolog.Logger {
	return logger.With().Str(FieldResource, id).Logger()
}
