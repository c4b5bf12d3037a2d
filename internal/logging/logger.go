// Package logging provides the structured logger used across the server,
// client, and CLI.
//
// Adapted directly from the teacher's logging package
// (tonylturner-cipdip internal/logging/logger.go): same level ladder,
// same stdout/stderr/file fan-out, same mutex-guarded write path. The
// CIP-specific LogOperation/LogStartup helpers are replaced with DoIP
// equivalents (LogStateTransition, LogFrame); the server, client and FSM
// do not call them, they log through AsStdLogger.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Level is the logging verbosity, increasing from silent to debug.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelInfo
	LevelVerbose
	LevelDebug
)

// ParseLevel converts a config-file level name into a Level. An empty
// string is treated as LevelInfo, the same default config.applyServerDefaults
// and config.applyClientDefaults fill in.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "", "info":
		return LevelInfo, nil
	case "silent":
		return LevelSilent, nil
	case "error":
		return LevelError, nil
	case "verbose":
		return LevelVerbose, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger is a mutex-guarded, level-filtered writer fanning out to stdout,
// stderr, and an optional log file.
type Logger struct {
	mu      sync.Mutex
	level   Level
	file    *os.File
	fileLog *log.Logger
	stdout  *log.Logger
	stderr  *log.Logger
}

// New creates a Logger at the given level. If logFile is non-empty, it is
// created (truncating any existing file) and every message that passes the
// level filter is also written there.
func New(level Level, logFile string) (*Logger, error) {
	l := &Logger{
		level:  level,
		stdout: log.New(os.Stdout, "", 0),
		stderr: log.New(os.Stderr, "", 0),
	}

	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		l.fileLog = log.New(file, "", log.LstdFlags)
	}

	return l, nil
}

// Close closes the log file, if one is open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LevelError {
		l.write("ERROR: "+fmt.Sprintf(format, v...), true)
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LevelInfo {
		l.write("INFO: "+fmt.Sprintf(format, v...), false)
	}
}

func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LevelVerbose {
		l.write("VERBOSE: "+fmt.Sprintf(format, v...), false)
	}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LevelDebug {
		l.write("DEBUG: "+fmt.Sprintf(format, v...), false)
	}
}

func (l *Logger) write(msg string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog != nil {
		l.fileLog.Println(msg)
	}

	if isError {
		l.stderr.Println(msg)
	} else if l.level >= LevelVerbose {
		l.stdout.Println(msg)
	}
}

// SetLevel changes the filtering level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current filtering level.
func (l *Logger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogStateTransition records a state-machine transition at verbose level.
func (l *Logger) LogStateTransition(from, to, event string) {
	l.Verbose("fsm: %s --[%s]--> %s", from, event, to)
}

// LogFrame records an inbound or outbound DoIP frame at debug level.
func (l *Logger) LogFrame(direction string, payloadType uint16, payload []byte) {
	if l.level < LevelDebug {
		return
	}
	l.Debug("%s payload_type=0x%04X len=%d bytes=%x", direction, payloadType, len(payload), payload)
}

// AsStdLogger adapts this Logger to a *log.Logger for packages (fsm,
// server, tcpsession) that accept the standard library's logger type
// rather than taking a dependency on this package directly.
func (l *Logger) AsStdLogger() *log.Logger {
	return log.New(stdLoggerWriter{l}, "", 0)
}

type stdLoggerWriter struct {
	l *Logger
}

func (w stdLoggerWriter) Write(p []byte) (int, error) {
	w.l.Info("%s", string(p))
	return len(p), nil
}
