// Package logger is a small facade over zerolog. Call sites pass a component
// name and an optional fields map so log lines stay greppable per subsystem.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
)

// Setup configures the global logger. Level is one of debug/info/warn/error;
// format is "console" for human-readable output or "json" for machine output.
func Setup(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if format != "json" {
		w = consoleWriter(os.Stderr)
	}

	mu.Lock()
	log = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	mu.Unlock()
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	log = log.Output(w)
	mu.Unlock()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
}

func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(zerolog.DebugLevel, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(zerolog.InfoLevel, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(zerolog.WarnLevel, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(zerolog.ErrorLevel, component, msg, fields)
}

func emit(lvl zerolog.Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	l := log
	mu.RUnlock()

	ev := l.WithLevel(lvl).Str("component", component)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
