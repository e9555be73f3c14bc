// Package audit appends one JSON object per line to a log file recording
// every successfully answered query.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Entry is one audit record.
type Entry struct {
	Timestamp    float64 `json:"timestamp"`
	UserID       string  `json:"user_id"`
	Query        string  `json:"query"`
	SQL          string  `json:"sql"`
	Metadata     any     `json:"metadata"`
	GuardMetrics any     `json:"guard_metrics"`
}

// Logger writes audit entries to an append-only file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	log  *zap.Logger
}

// New opens (creating parent directories as needed) the audit log at path
// for appending.
func New(path string, log *zap.Logger) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f, log: log}, nil
}

// Write appends entry as a JSON line. Write failures are logged and
// swallowed: a broken audit log must never fail the request it is recording.
func (l *Logger) Write(entry Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		if l.log != nil {
			l.log.Error("audit: marshal entry failed", zap.Error(err))
		}
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(raw, '\n')); err != nil {
		if l.log != nil {
			l.log.Error("audit: write entry failed", zap.Error(err))
		}
	}
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}
