package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
)

const maxTerminalOutputLines = 3000

// bashTool executes a shell command via the system shell, grounded on
// original_source/vtagent-core/src/bash_runner.rs's "one OS process per
// invocation, output drained on a background task" rule (here: a
// goroutine reading combined output while the process runs under ctx).
// Command policy (allow/deny lists) is the Policy Engine's job, not the
// tool's — agentloop.Session checks the tool and command policy before it
// dispatches through the registry; Registry.Execute itself does no policy
// check.
type bashTool struct{ name string }

type bashArgs struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd"`
}

func (t bashTool) Definition() Definition {
	return Definition{
		Name:        t.name,
		Description: "Execute a shell command in the workspace. Output is truncated beyond 3000 lines.",
		Capability:  CapabilityBash,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string"},
				"cwd":     map[string]any{"type": "string"},
			},
			"required": []any{"command"},
		},
	}
}

func (t bashTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args bashArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	dir := ws.Root
	if args.Cwd != "" {
		resolved, err := ws.Resolve(args.Cwd)
		if err != nil {
			return nil, err
		}
		dir = resolved
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", args.Command)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()

	output := out.String()
	lines := strings.Split(output, "\n")
	truncated := false
	if len(lines) > maxTerminalOutputLines {
		lines = lines[:maxTerminalOutputLines]
		truncated = true
	}

	result := map[string]any{
		"command":   args.Command,
		"output":    strings.Join(lines, "\n"),
		"truncated": truncated,
		"exit_code": exitCode(runErr),
	}
	if runErr != nil {
		result["error"] = runErr.Error()
	}
	return result, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
