package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"github.com/rs/zerolog"
)

// Logger is the logging surface handed to components.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
}

// LogEvent is a pending log line.
type LogEvent struct {
	*zerolog.Event
}

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var root = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init points the global logger at stdout and applies level.
func Init(level string, isService bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	InitWriter(os.Stdout, isService)
	SetLogLevel(lvl)
	return nil
}

// InitWriter replaces the output of the global logger. Under a service
// manager the journal stamps lines itself, so timestamps and colour are
// dropped.
func InitWriter(out io.Writer, isService bool) {
	w := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: isService}
	if isService {
		w.FormatTimestamp = func(any) string { return "" }
	}
	root = zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a configured level name to a LogLevel. An empty name is
// info.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
}

func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService guesses whether perfd runs under systemd or another supervisor.
func IsService() bool {
	switch {
	case os.Getenv("INVOCATION_ID") != "", os.Getenv("SERVICE_NAME") != "":
		return true
	case os.Getppid() == 1:
		return true
	}
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	return syscall.Getpgrp() == syscall.Getpid()
}

func Debug() *LogEvent { return &LogEvent{root.Debug()} }
func Info() *LogEvent  { return &LogEvent{root.Info()} }
func Warn() *LogEvent  { return &LogEvent{root.Warn()} }
func Error() *LogEvent { return &LogEvent{root.Error()} }

// ErrorWithCode starts an error line carrying err's code, message and
// attached data.
func ErrorWithCode(err errors.Error) *LogEvent {
	return coded(root.Error(), err)
}

func coded(ev *zerolog.Event, err errors.Error) *LogEvent {
	ev = ev.Str("error_code", string(err.Code())).Str("error_message", err.Error())
	if data := err.Data(); data != nil {
		ev = ev.Interface("error_data", data)
	}
	return &LogEvent{ev.AnErr("error", err.Unwrap())}
}

type component struct {
	zl zerolog.Logger
}

// WithComponent returns a Logger that tags every line with name. The global
// output is captured at call time.
func WithComponent(name string) Logger {
	return &component{zl: root.With().Str("component", name).Logger()}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &component{zl: zerolog.Nop()}
}

func (c *component) Debug() *LogEvent { return &LogEvent{c.zl.Debug()} }
func (c *component) Info() *LogEvent  { return &LogEvent{c.zl.Info()} }
func (c *component) Warn() *LogEvent  { return &LogEvent{c.zl.Warn()} }
func (c *component) Error() *LogEvent { return &LogEvent{c.zl.Error()} }

func (c *component) ErrorWithCode(err errors.Error) *LogEvent {
	return coded(c.zl.Error(), err)
}
