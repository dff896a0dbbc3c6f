// Package tradelog persists execution results as line-delimited JSON in a
// size-rotated file; it does not rotate at day boundaries. Archival of rotated files to long-term storage is a
// separate uploader process, out of scope here.
package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arbplane/arbplane/internal/domain"
)

// Log appends one JSON line per execution result to a lumberjack-rotated file.
type Log struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// New creates a Log writing to path. lumberjack rotates the file when it
// reaches its default maximum size (100 MB), not at day boundaries; rotated
// files are compressed, and at most maxBackups of them are kept, each for at
// most one day (MaxAge).
func New(path string, maxBackups int) *Log {
	return &Log{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxAge:     1, // days
			MaxBackups: maxBackups,
			Compress:   true,
		},
	}
}

// Record appends result as a single JSON line.
func (l *Log) Record(ctx context.Context, result domain.ExecutionResult) error {
	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("tradelog: marshal result: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.writer.Write(line); err != nil {
		return fmt.Errorf("tradelog: write: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying rotated file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Close()
}
