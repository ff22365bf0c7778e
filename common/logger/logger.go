package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger for console output. The level
// comes from LOG_LEVEL (default info).
func Setup() {
	level, err := zerolog.ParseLevel(levelFromEnv())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
}

func levelFromEnv() string {
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		return v
	}
	return "info"
}
