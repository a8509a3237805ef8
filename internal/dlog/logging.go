// Package dlog provides the adapter's structured logging, gated behind
// a verbosity flag the way the teacher's browser launch code gates its
// own log.Printf calls behind Options.Verbose.
package dlog

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/tmc/dapcore/internal/codes"
)

// Level is the severity of a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level's label as printed in log lines.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the adapter's structured logger: one line per event, level
// gated, with a verbose mode that dumps full AdapterError detail.
type Logger struct {
	level     Level
	verbose   bool
	sessionID string
	out       *log.Logger
}

// New creates a Logger writing to stderr at LevelInfo (LevelDebug when
// verbose), tagged with a
// fresh session ID so log lines from concurrent dapserve connections
// (one per TCP client) can be told apart.
func New(verbose bool) *Logger {
	level := LevelInfo
	if verbose {
		level = LevelDebug
	}
	return &Logger{
		level:     level,
		verbose:   verbose,
		sessionID: uuid.NewString()[:8],
		out:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

// SessionID returns the correlation ID this Logger tags its lines
// with.
func (l *Logger) SessionID() string { return l.sessionID }

func (l *Logger) shouldLog(level Level) bool {
	return level >= l.level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}
	l.out.Printf("[%s] [%s] %s", l.sessionID, level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// LogAdapterError logs an *codes.AdapterError at a severity derived from
// its Kind, with full cause detail when verbose.
func (l *Logger) LogAdapterError(err error) {
	if err == nil {
		return
	}
	ae, ok := err.(*codes.AdapterError)
	if !ok {
		l.Error("unexpected error: %v", err)
		return
	}
	level := levelForKind(ae.Kind)
	if l.verbose {
		l.log(level, "%s", formatAdapterError(ae))
	} else {
		l.log(level, "%s", ae.Message)
	}
}

func formatAdapterError(ae *codes.AdapterError) string {
	parts := []string{fmt.Sprintf("kind=%s", ae.Kind), fmt.Sprintf("message=%s", ae.Message)}
	if ae.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", ae.Cause))
	}
	return strings.Join(parts, " ")
}

func levelForKind(kind codes.Kind) Level {
	switch kind {
	case codes.PathFormatUnsupported, codes.MissingAttachPort:
		return LevelError
	case codes.StackFrameNotValid, codes.SourceRequestIllegalHandle, codes.SetValueNotSupported:
		return LevelWarn
	case codes.RuntimeNotConnected:
		return LevelError
	case codes.EvaluateFailed:
		return LevelWarn
	case codes.BreakpointIgnoredNoMapping, codes.BreakpointIgnoredNoTargetPath:
		return LevelWarn
	case codes.BreakpointsTimeout:
		return LevelError
	case codes.InvalidHitCondition:
		return LevelWarn
	default:
		return LevelError
	}
}
