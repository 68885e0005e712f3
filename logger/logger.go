/*
The logger package provides the shared structured logger for the module. It
wraps zerolog and can fan out to any number of console writers as well as an
optional rotating log file. Components grab their own sub-logger via
GetComponentLogger so that every line carries the component that produced it.
*/
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DebugLevel and friends mirror zerolog's level names so that callers don't
// need to import zerolog directly
const (
	Debug = "debug"
	Info  = "info"
	Error = "error"
	Trace = "trace"
)

type Config struct {
	// Human-readable output destinations, e.g. os.Stdout
	ConsoleWriters []io.Writer

	// If set, logs are also written to this file with rotation
	FilePath string

	// One of the level constants above; defaults to debug
	LogLevel string
}

type Logger struct {
	logger zerolog.Logger
}

func New(config *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(defaultLevel(config.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("unrecognized log level %s: %w", config.LogLevel, err)
	}

	writers := []io.Writer{}
	for _, consoleWriter := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        consoleWriter,
			TimeFormat: time.RFC3339,
		})
	}

	if config.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			MaxAge:     30, // days
		})
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: logger}, nil
}

// Nop returns a logger that discards everything it is given. It is the
// default for library components when the caller doesn't provide a logger.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func defaultLevel(level string) string {
	if level == "" {
		return Debug
	}
	return level
}

// GetComponentLogger returns a child logger tagged with the given component
// name. The child shares the parent's writers and level.
func (l *Logger) GetComponentLogger(component string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", component).Logger(),
	}
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.logger.Info().Msgf(format, a...)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.logger.Debug().Msgf(format, a...)
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	l.logger.Trace().Msgf(format, a...)
}

func (l *Logger) Error(err error) {
	l.logger.Error().Msg(err.Error())
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	l.logger.Error().Msgf(format, a...)
}
