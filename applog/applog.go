// Package applog provides general-purpose application logging.
//
// Logs are written to ~/.paiconsole/logs/app.log with timestamps.
// Covers: app start/stop, config changes, login/refresh, stream
// lifecycle and general events. Nothing is ever written to stdout or
// stderr, which belong to the TUI and to `paiconsole ask`.
//
// Debug lines are dropped unless PAICONSOLE_DEBUG=1.
package applog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	once    sync.Once
	mu      sync.Mutex
	logFile io.WriteCloser
	debug   bool
)

func init() {
	debug = strings.TrimSpace(os.Getenv("PAICONSOLE_DEBUG")) == "1"
}

func open() {
	once.Do(func() {
		if logFile != nil {
			return
		}
		f, err := openLog("app.log")
		if err != nil {
			return
		}
		logFile = f
	})
}

// openLog opens (or creates) a file under ~/.paiconsole/logs.
func openLog(name string) (*os.File, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	logDir := filepath.Join(homeDir, ".paiconsole", "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// SetOutput redirects the application log, e.g. to a buffer in tests.
func SetOutput(w io.WriteCloser) {
	once.Do(func() {})
	mu.Lock()
	logFile = w
	mu.Unlock()
}

// SetDebug toggles Debug output.
func SetDebug(on bool) {
	mu.Lock()
	debug = on
	mu.Unlock()
}

func write(s string) {
	open()
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Write([]byte(s)) //nolint:errcheck
	}
}

func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// Info logs a general info message.
func Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	write(fmt.Sprintf("[%s] INFO  %s\n", timestamp(), msg))
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	write(fmt.Sprintf("[%s] ERROR %s\n", timestamp(), msg))
}

// Debug logs a trace message when debugging is on.
func Debug(format string, args ...interface{}) {
	mu.Lock()
	on := debug
	mu.Unlock()
	if !on {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write(fmt.Sprintf("[%s] DEBUG %s\n", timestamp(), msg))
}

// Event logs a structured event with a category.
func Event(category string, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	write(fmt.Sprintf("[%s] %-12s %s\n", timestamp(), category, msg))
}

// Close flushes and closes the log files.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	if turnFile != nil {
		turnFile.Close()
		turnFile = nil
	}
}
