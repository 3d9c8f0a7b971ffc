package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// ptySessionTool backs run_pty_cmd: a long-lived shell process the model
// can write to and read from across multiple tool calls. No pseudo-tty
// allocation library exists anywhere in the pack, so this is a pipe-backed
// approximation (stdin/stdout pipes, no terminal control sequences) rather
// than a real pty — sessions are named and addressed by id the same way a
// true pty session would be, but programs that require an actual tty
// (isatty checks, raw-mode line editors) will not behave correctly.
type ptySessionTool struct {
	mu       sync.Mutex
	sessions map[string]*ptySession
}

type ptySession struct {
	id     string
	cmd    *exec.Cmd
	stdin  *ptyWriter
	stdout *bytes.Buffer
	mu     sync.Mutex
}

type ptyWriter struct {
	w interface {
		Write([]byte) (int, error)
		Close() error
	}
}

type ptyArgs struct {
	Op        string `json:"op"` // create | write | read | close | list
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
	Input     string `json:"input"`
}

func newPtySessionTool() *ptySessionTool {
	return &ptySessionTool{sessions: map[string]*ptySession{}}
}

func (t *ptySessionTool) Definition() Definition {
	return Definition{
		Name:        "run_pty_cmd",
		Description: "Manage a long-lived interactive shell session: create, write input, read buffered output, close, or list sessions.",
		Capability:  CapabilityBash,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"op":         map[string]any{"type": "string", "enum": []any{"create", "write", "read", "close", "list"}},
				"session_id": map[string]any{"type": "string"},
				"command":    map[string]any{"type": "string"},
				"input":      map[string]any{"type": "string"},
			},
			"required": []any{"op"},
		},
	}
}

func (t *ptySessionTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args ptyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	switch args.Op {
	case "create":
		return t.create(ws, args)
	case "write":
		return t.write(args)
	case "read":
		return t.read(args)
	case "close":
		return t.close(args)
	case "list":
		return t.list(), nil
	default:
		return nil, fmt.Errorf("run_pty_cmd: unknown op %q", args.Op)
	}
}

func (t *ptySessionTool) create(ws *Workspace, args ptyArgs) (any, error) {
	if args.Command == "" {
		return nil, fmt.Errorf("run_pty_cmd: create requires command")
	}
	cmd := exec.Command("/bin/sh", "-c", args.Command)
	cmd.Dir = ws.Root

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("run_pty_cmd: %w", err)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("run_pty_cmd: start: %w", err)
	}

	id := uuid.NewString()
	sess := &ptySession{
		id:     id,
		cmd:    cmd,
		stdin:  &ptyWriter{w: stdinPipe},
		stdout: &out,
	}

	t.mu.Lock()
	t.sessions[id] = sess
	t.mu.Unlock()

	return map[string]any{"session_id": id}, nil
}

func (t *ptySessionTool) lookup(id string) (*ptySession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[id]
	if !ok {
		return nil, fmt.Errorf("run_pty_cmd: unknown session %q", id)
	}
	return sess, nil
}

func (t *ptySessionTool) write(args ptyArgs) (any, error) {
	sess, err := t.lookup(args.SessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, err := sess.stdin.w.Write([]byte(args.Input)); err != nil {
		return nil, fmt.Errorf("run_pty_cmd: write: %w", err)
	}
	return map[string]any{"session_id": args.SessionID, "bytes_written": len(args.Input)}, nil
}

func (t *ptySessionTool) read(args ptyArgs) (any, error) {
	sess, err := t.lookup(args.SessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	output := sess.stdout.String()
	lines := len(output)
	if lines > maxTerminalOutputLines*200 {
		output = output[len(output)-maxTerminalOutputLines*200:]
	}
	return map[string]any{"session_id": args.SessionID, "output": output}, nil
}

func (t *ptySessionTool) close(args ptyArgs) (any, error) {
	sess, err := t.lookup(args.SessionID)
	if err != nil {
		return nil, err
	}
	_ = sess.stdin.w.Close()
	_ = sess.cmd.Process.Kill()
	t.mu.Lock()
	delete(t.sessions, args.SessionID)
	t.mu.Unlock()
	return map[string]any{"session_id": args.SessionID, "closed": true}, nil
}

func (t *ptySessionTool) list() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	return map[string]any{"sessions": ids}
}
