// Package log provides the application-wide structured logger.
//
// It is a thin package-level facade over zerolog so that call sites can
// log with alternating key/value pairs without holding a logger instance.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = newLogger("console")
)

func newLogger(format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// Configure sets the global log level and output format.
// Level is one of trace, debug, info, warn, error; format is
// "console" or "json". Unknown values fall back to info/console.
func Configure(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(format).Level(lvl)
}

// Trace logs at trace level with alternating key/value pairs.
func Trace(msg string, kv ...any) { emit(zerolog.TraceLevel, msg, kv) }

// Debug logs at debug level with alternating key/value pairs.
func Debug(msg string, kv ...any) { emit(zerolog.DebugLevel, msg, kv) }

// Info logs at info level with alternating key/value pairs.
func Info(msg string, kv ...any) { emit(zerolog.InfoLevel, msg, kv) }

// Warn logs at warn level with alternating key/value pairs.
func Warn(msg string, kv ...any) { emit(zerolog.WarnLevel, msg, kv) }

// Error logs at error level with alternating key/value pairs.
func Error(msg string, kv ...any) { emit(zerolog.ErrorLevel, msg, kv) }

func emit(lvl zerolog.Level, msg string, kv []any) {
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(lvl)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
