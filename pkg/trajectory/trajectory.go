// Package trajectory writes one JSONL file per session under a workspace's
// .vtcode/ directory, one event per line: every message, tool call, and
// error for the session, as distinct from the coarser pkg/ledger decision
// stream. The write-then-rotate-check shape is pkg/proxy/trace.go's; the
// event taxonomy is pkg/harness/logger.go's turn lifecycle widened to cover
// a whole session instead of one turn.
package trajectory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType labels a trajectory line.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventUserMessage  EventType = "user_message"
	EventAssistantMsg EventType = "assistant_message"
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventError        EventType = "error"
	EventSessionEnd   EventType = "session_end"
)

// Event is a single line in the trajectory file.
type Event struct {
	Timestamp string          `json:"ts"`
	Type      EventType       `json:"type"`
	Turn      int             `json:"turn,omitempty"`
	Role      string          `json:"role,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolID    string          `json:"tool_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Error     string          `json:"error,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// Logger writes Events to "<workspace>/.vtcode/<sessionID>.jsonl".
type Logger struct {
	mu         sync.Mutex
	path       string
	maxBytes   int64
	maxBackups int
}

const dirName = ".vtcode"

// Open creates (or appends to) the trajectory file for sessionID under the
// workspace's .vtcode/ directory.
func Open(workspaceRoot, sessionID string) (*Logger, error) {
	dir := filepath.Join(workspaceRoot, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trajectory: create dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	return &Logger{path: path, maxBytes: 25 * 1024 * 1024, maxBackups: 5}, nil
}

// Path returns the on-disk file this logger writes to.
func (l *Logger) Path() string {
	return l.path
}

// Log appends ev to the trajectory file, rotating first if the file has
// grown past the size threshold. Errors are swallowed: a broken trajectory
// file must never interrupt the run loop it is observing.
func (l *Logger) Log(ev Event) {
	if l == nil {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rotateIfNeeded()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	_ = enc.Encode(ev)
}

func (l *Logger) rotateIfNeeded() {
	if l.maxBytes <= 0 {
		return
	}
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < l.maxBytes {
		return
	}
	rotateFile(l.path, l.maxBackups)
}

// rotateFile shifts path.N -> path.N+1 up to maxBackups and moves path to
// path.1, mirroring pkg/proxy/rotate.go's scheme.
func rotateFile(path string, maxBackups int) error {
	for i := maxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return err
			}
		}
	}
	if maxBackups > 0 {
		if err := os.Rename(path, path+".1"); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// LogUserMessage records a user turn.
func (l *Logger) LogUserMessage(turn int, content string) {
	l.Log(Event{Type: EventUserMessage, Turn: turn, Role: "user", Content: content})
}

// LogAssistantMessage records the model's final text for a turn.
func (l *Logger) LogAssistantMessage(turn int, content string) {
	l.Log(Event{Type: EventAssistantMsg, Turn: turn, Role: "assistant", Content: content})
}

// LogToolCall records a dispatched tool invocation.
func (l *Logger) LogToolCall(turn int, toolID, name, argsJSON string) {
	l.Log(Event{Type: EventToolCall, Turn: turn, ToolID: toolID, ToolName: name, Content: argsJSON})
}

// LogToolResult records a tool's outcome.
func (l *Logger) LogToolResult(turn int, toolID, name, result string) {
	l.Log(Event{Type: EventToolResult, Turn: turn, ToolID: toolID, ToolName: name, Content: result})
}

// LogError records an error surfaced during the session.
func (l *Logger) LogError(turn int, err error) {
	if err == nil {
		return
	}
	l.Log(Event{Type: EventError, Turn: turn, Error: err.Error()})
}

// LogSessionStart/LogSessionEnd bookend the trajectory file.
func (l *Logger) LogSessionStart(detail any) {
	l.Log(Event{Type: EventSessionStart, Detail: marshalDetail(detail)})
}

func (l *Logger) LogSessionEnd(detail any) {
	l.Log(Event{Type: EventSessionEnd, Detail: marshalDetail(detail)})
}

func marshalDetail(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return buf
}
