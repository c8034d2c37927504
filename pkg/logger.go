package metacache

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type logger struct {
	logger zerolog.Logger
	debug  bool
}

var (
	Logger *logger
	once   sync.Once
)

func InitLogger(debugMode bool, prettyLogs bool) {
	once.Do(func() {
		var output io.Writer = os.Stderr

		zerolog.TimeFieldFormat = time.RFC3339
		logLevel := zerolog.InfoLevel
		if debugMode {
			logLevel = zerolog.DebugLevel
		}

		if prettyLogs {
			output = zerolog.ConsoleWriter{Out: os.Stderr}
		}

		zerologLogger := zerolog.New(output).
			Level(logLevel).
			With().
			Timestamp().
			Logger()

		Logger = &logger{
			logger: zerologLogger,
			debug:  debugMode,
		}
	})
}

func (l *logger) Debugf(template string, args ...interface{}) {
	if l.debug {
		l.logger.Debug().Msgf(template, args...)
	}
}

func (l *logger) Infof(template string, args ...interface{}) {
	l.logger.Info().Msgf(template, args...)
}

func (l *logger) Warnf(template string, args ...interface{}) {
	l.logger.Warn().Msgf(template, args...)
}

func (l *logger) Errorf(template string, args ...interface{}) {
	l.logger.Error().Msgf(template, args...)
}

func (l *logger) Fatalf(template string, args ...interface{}) {
	l.logger.Fatal().Msgf(template, args...)
}
