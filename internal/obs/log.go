package obs

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide logger: compact console output in DEV,
// JSON lines everywhere else.
func NewLogger(appName, env string) zerolog.Logger {
	var logger zerolog.Logger
	if env == "DEV" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.With().Timestamp().Str("app", appName).Logger()
}
