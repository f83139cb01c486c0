// Package retrylog appends the meaningful results of retried reads to a
// per-run log file.
package retrylog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimestampLayout is the time part of the log file name.
const TimestampLayout = "2006-01-02_03-04-05-PM"

// Log is an append-only file created on first use. It is safe for
// concurrent use.
type Log struct {
	mu     sync.Mutex
	dir    string
	start  time.Time
	path   string
	file   *os.File
	closed bool
	logger *logrus.Logger
}

// New creates a log for a run started at start, placed in dir.
func New(dir string, start time.Time, logger *logrus.Logger) *Log {
	if logger == nil {
		logger = logrus.New()
	}
	return &Log{dir: dir, start: start, logger: logger}
}

// Bind names the log file after the first opened device. Later calls keep
// the first name.
func (l *Log) Bind(deviceName string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path != "" {
		return
	}
	l.path = filepath.Join(l.dir, FileName(deviceName, l.start))
	l.logger.WithField("path", l.path).Debug("Retry log path fixed")
}

// Path returns the log file path, or "" until Bind is called.
func (l *Log) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Append writes line followed by a newline, creating the file if needed.
func (l *Log) Append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("retry log is closed")
	}
	if l.path == "" {
		return fmt.Errorf("retry log has no device bound")
	}
	if l.file == nil {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open retry log: %w", err)
		}
		l.file = f
		l.logger.WithField("path", l.path).Info("Retry log created")
	}

	if _, err := l.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to retry log: %w", err)
	}
	return nil
}

// Close closes the log file. It is safe to call Close multiple times.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// FileName builds "<device>-<timestamp>.log", replacing characters that are
// not safe in file names.
func FileName(deviceName string, start time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(deviceName))
	if name == "" {
		name = "device"
	}
	return fmt.Sprintf("%s-%s.log", name, start.Format(TimestampLayout))
}
