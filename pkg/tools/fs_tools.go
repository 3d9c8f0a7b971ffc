package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	maxFullReadLines  = 2000
	chunkHeadLines    = 800
	chunkTailLines    = 800
	maxFullWriteBytes = 500 * 1024
	maxChunkBytes     = 50 * 1024
)

// --- list_files ---

type listFilesTool struct{}

type listFilesArgs struct {
	Path       string `json:"path"`
	ShowHidden bool   `json:"show_hidden"`
	Extension  string `json:"extension"`
}

func (listFilesTool) Definition() Definition {
	return Definition{
		Name:        "list_files",
		Description: "List files and directories under a workspace-relative path.",
		Capability:  CapabilityFileListing,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string"},
				"show_hidden": map[string]any{"type": "boolean"},
				"extension":   map[string]any{"type": "string"},
			},
		},
	}
}

func (listFilesTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args listFilesArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
	}
	dir, err := ws.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list_files: %w", err)
	}

	type entry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
	}
	var out []entry
	for _, e := range entries {
		name := e.Name()
		if !args.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if ws.Ignore.Matches(name) {
			continue
		}
		if args.Extension != "" && !e.IsDir() && !strings.HasSuffix(name, args.Extension) {
			continue
		}
		out = append(out, entry{Name: name, IsDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return map[string]any{"path": args.Path, "entries": out}, nil
}

// --- read_file ---

type readFileTool struct{}

type readFileArgs struct {
	Path string `json:"path"`
}

func (readFileTool) Definition() Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read a workspace file. Files over 2000 lines are chunked to the first 800 and last 800 lines.",
		Capability:  CapabilityFileReading,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []any{"path"},
		},
	}
}

func (readFileTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args readFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	path, err := ws.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	lines := strings.Split(string(buf), "\n")
	if len(lines) <= maxFullReadLines {
		return map[string]any{"path": args.Path, "content": string(buf), "chunked": false}, nil
	}
	head := strings.Join(lines[:chunkHeadLines], "\n")
	tail := strings.Join(lines[len(lines)-chunkTailLines:], "\n")
	return map[string]any{
		"path":         args.Path,
		"chunked":      true,
		"total_lines":  len(lines),
		"head":         head,
		"tail":         tail,
		"omitted_note": fmt.Sprintf("%d lines omitted between head and tail", len(lines)-chunkHeadLines-chunkTailLines),
	}, nil
}

// --- write_file / create_file ---

type writeFileTool struct{ create bool }

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t writeFileTool) Definition() Definition {
	name, desc := "write_file", "Overwrite (or create) a workspace file with the given content."
	if t.create {
		name, desc = "create_file", "Create a new workspace file; fails if it already exists."
	}
	return Definition{
		Name:        name,
		Description: desc,
		Capability:  CapabilityEditing,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []any{"path", "content"},
		},
	}
}

func (t writeFileTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args writeFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if len(args.Content) > maxFullWriteBytes {
		return nil, fmt.Errorf("%s: content exceeds %d byte limit", t.Definition().Name, maxFullWriteBytes)
	}
	path, err := ws.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	if t.create && fileExists(path) {
		return nil, fmt.Errorf("create_file: %s already exists", args.Path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", t.Definition().Name, err)
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return nil, fmt.Errorf("%s: %w", t.Definition().Name, err)
	}
	return map[string]any{"path": args.Path, "bytes_written": len(args.Content)}, nil
}

// --- edit_file (chunked find/replace) ---

type editFileTool struct{}

type editFileArgs struct {
	Path      string `json:"path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
	Count     int    `json:"replace_count"` // 0 = first occurrence only
}

func (editFileTool) Definition() Definition {
	return Definition{
		Name:        "edit_file",
		Description: "Replace an exact substring occurrence in a workspace file.",
		Capability:  CapabilityEditing,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":          map[string]any{"type": "string"},
				"old_string":    map[string]any{"type": "string"},
				"new_string":    map[string]any{"type": "string"},
				"replace_count": map[string]any{"type": "integer"},
			},
			"required": []any{"path", "old_string", "new_string"},
		},
	}
}

func (editFileTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args editFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if len(args.NewString) > maxChunkBytes {
		return nil, fmt.Errorf("edit_file: replacement exceeds %d byte chunk limit", maxChunkBytes)
	}
	path, err := ws.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("edit_file: %w", err)
	}
	content := string(buf)
	if !strings.Contains(content, args.OldString) {
		return nil, fmt.Errorf("edit_file: old_string not found in %s", args.Path)
	}
	n := args.Count
	if n <= 0 {
		n = 1
	}
	replaced := strings.Replace(content, args.OldString, args.NewString, n)
	if err := os.WriteFile(path, []byte(replaced), 0o644); err != nil {
		return nil, fmt.Errorf("edit_file: %w", err)
	}
	return map[string]any{"path": args.Path, "replacements": n}, nil
}

// --- delete_file ---

type deleteFileTool struct{}

func (deleteFileTool) Definition() Definition {
	return Definition{
		Name:        "delete_file",
		Description: "Delete a workspace file.",
		Capability:  CapabilityEditing,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []any{"path"},
		},
	}
}

func (deleteFileTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args readFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	path, err := ws.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("delete_file: %w", err)
	}
	return map[string]any{"path": args.Path, "deleted": true}, nil
}
