// Package obs provides ragarena's structured logging and metrics, mirroring
// the zerolog + OpenTelemetry stack used across this codebase's services.
package obs

import (
	"os"
	"strings"
	stdlog "log"

	"github.com/rs/zerolog"
)

// InitLogger configures the global zerolog logger. When logPath is empty,
// logs go to stdout; otherwise they go to the given file only, so as not to
// interfere with a terminal UI driving the same process.
func InitLogger(logPath, level string) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"

	var writer = os.Stdout
	if strings.TrimSpace(logPath) != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, err
		}
		writer = f
	}

	lvl, err := zerolog.ParseLevel(normalizeLevel(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	logger := zerolog.New(writer).With().Timestamp().Logger()
	stdlog.SetFlags(0)
	stdlog.SetOutput(logger)
	return logger, nil
}

func normalizeLevel(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	if l == "warning" {
		return "warn"
	}
	if l == "" {
		return "info"
	}
	return l
}
