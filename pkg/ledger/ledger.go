// Package ledger records the run loop's tool-dispatch and error decisions
// to a rotating JSONL file, the same on-disk shape pkg/proxy/audit.go used
// for gateway request auditing, adapted here to convo.DecisionRecord.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"godex-agent/pkg/convo"
)

const (
	defaultMaxBytes   = 10 * 1024 * 1024
	defaultMaxBackups = 5
)

// Entry is a single line in the ledger file.
type Entry struct {
	Timestamp string `json:"ts"`
	Turn      int    `json:"turn"`
	Kind      string `json:"kind"`
	Summary   string `json:"summary"`
	Outcome   string `json:"outcome"`
}

// Ledger writes DecisionRecords to a size-rotated JSONL file and implements
// agentloop.DecisionSink.
type Ledger struct {
	mu         sync.Mutex
	path       string
	maxBytes   int64
	maxBackups int
	file       *os.File
	size       int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxBytes overrides the default per-file size before rotation.
func WithMaxBytes(n int64) Option {
	return func(l *Ledger) { l.maxBytes = n }
}

// WithMaxBackups overrides the default number of retained rotated files.
func WithMaxBackups(n int) Option {
	return func(l *Ledger) { l.maxBackups = n }
}

// New opens (creating if needed) a ledger file at path.
func New(path string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:       path,
		maxBytes:   defaultMaxBytes,
		maxBackups: defaultMaxBackups,
	}
	for _, opt := range opts {
		opt(l)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ledger: stat: %w", err)
	}
	l.file = f
	l.size = info.Size()
	return l, nil
}

// Record appends a decision to the ledger. It satisfies agentloop.DecisionSink.
// Errors are swallowed: a broken ledger must never interrupt the run loop.
func (l *Ledger) Record(rec convo.DecisionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Turn:      rec.Turn,
		Kind:      rec.Kind,
		Summary:   rec.Summary,
		Outcome:   rec.Outcome,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	if l.size+int64(len(data)) > l.maxBytes {
		l.rotate()
	}

	n, err := l.file.Write(data)
	if err != nil {
		return
	}
	l.size += int64(n)
}

// Close closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// rotate shifts ledger.log.N -> ledger.log.N+1 up to maxBackups, moves the
// current file to ledger.log.1, and opens a fresh file in its place.
// Must be called with l.mu held.
func (l *Ledger) rotate() {
	l.file.Close()

	for i := l.maxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", l.path, i)
		dst := fmt.Sprintf("%s.%d", l.path, i+1)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	if l.maxBackups > 0 {
		os.Rename(l.path, l.path+".1")
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		// Fall back to the old (now-renamed-away) handle's descriptor being
		// gone; reopen in append mode against whatever exists so future
		// writes don't panic on a nil file.
		f, _ = os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
	l.file = f
	l.size = 0
}
