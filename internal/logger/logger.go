package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	Fatal(msg string)
	Fatalf(format string, args ...interface{})
	Panic(msg string)
	Panicf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New builds a zerolog-backed logger writing to stdout
func New(cfg Config) Logger {
	return NewWithWriter(cfg, os.Stdout)
}

func NewWithWriter(cfg Config, w io.Writer) Logger {
	out := w
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &zeroLogger{zl: zl}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

type zeroLogger struct {
	zl zerolog.Logger
}

func (l *zeroLogger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *zeroLogger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}
func (l *zeroLogger) Info(msg string) { l.zl.Info().Msg(msg) }
func (l *zeroLogger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}
func (l *zeroLogger) Warn(msg string) { l.zl.Warn().Msg(msg) }
func (l *zeroLogger) Warnf(format string, args ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}
func (l *zeroLogger) Error(msg string) { l.zl.Error().Msg(msg) }
func (l *zeroLogger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}
func (l *zeroLogger) Fatal(msg string) { l.zl.Fatal().Msg(msg) }
func (l *zeroLogger) Fatalf(format string, args ...interface{}) {
	l.zl.Fatal().Msg(fmt.Sprintf(format, args...))
}
func (l *zeroLogger) Panic(msg string) { l.zl.Panic().Msg(msg) }
func (l *zeroLogger) Panicf(format string, args ...interface{}) {
	l.zl.Panic().Msg(fmt.Sprintf(format, args...))
}

func (l *zeroLogger) WithField(key string, value interface{}) Logger {
	return &zeroLogger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *zeroLogger) WithFields(fields map[string]interface{}) Logger {
	return &zeroLogger{zl: l.zl.With().Fields(fields).Logger()}
}

// Nop discards everything; Fatal and Panic do not exit or panic
func Nop() Logger {
	return NopLogger{}
}

type NopLogger struct{}

func (NopLogger) Debug(string)                               {}
func (NopLogger) Debugf(string, ...interface{})              {}
func (NopLogger) Info(string)                                {}
func (NopLogger) Infof(string, ...interface{})               {}
func (NopLogger) Warn(string)                                {}
func (NopLogger) Warnf(string, ...interface{})               {}
func (NopLogger) Error(string)                               {}
func (NopLogger) Errorf(string, ...interface{})              {}
func (NopLogger) Fatal(string)                               {}
func (NopLogger) Fatalf(string, ...interface{})              {}
func (NopLogger) Panic(string)                               {}
func (NopLogger) Panicf(string, ...interface{})              {}
func (n NopLogger) WithField(string, interface{}) Logger     { return n }
func (n NopLogger) WithFields(map[string]interface{}) Logger { return n }
