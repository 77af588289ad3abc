package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

var (
	logMu     sync.RWMutex
	logLevel  = ParseLogLevel(os.Getenv("TRUEMARKET_LOG_LEVEL"))
	logFormat = LogFormatJSON
)

// ConfigureLogging sets the level and format of loggers created by
// NewLogger afterwards. Existing loggers keep their settings.
func ConfigureLogging(level, format string) {
	logMu.Lock()
	defer logMu.Unlock()
	logLevel = ParseLogLevel(level)
	if format == LogFormatConsole {
		logFormat = LogFormatConsole
	} else {
		logFormat = LogFormatJSON
	}
}

// NewLogger returns a stdout logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	logMu.RLock()
	level, format := logLevel, logFormat
	logMu.RUnlock()

	var w io.Writer = os.Stdout
	if format == LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}
	return NewLoggerTo(w, component, level)
}

func NewLoggerTo(w io.Writer, component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

// ParseLogLevel maps a level name to zerolog; empty or unknown names are info.
func ParseLogLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
