package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Default is the process-wide logger instance.
var Default zerolog.Logger

// Init configures zerolog with a console writer and the level taken from
// LOG_LEVEL (debug when unset).
func Init() {
	level := zerolog.DebugLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	Default = zerolog.New(output).With().Timestamp().Logger()
}

// ForComponent returns a child logger tagged with the component name.
func ForComponent(name string) zerolog.Logger {
	return Default.With().Str("component", name).Logger()
}
