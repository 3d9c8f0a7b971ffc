package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// --- simple_search: a pure-Go substring scan, no ripgrep dependency. ---
//
// grep_search shells out to ripgrep for speed and regex support; this one
// exists for environments where ripgrep is unavailable, matching the
// "fallback to a builtin" note in vtagent-core's tool docs.
type simpleSearchTool struct{}

type simpleSearchArgs struct {
	Query string `json:"query"`
	Path  string `json:"path"`
}

const simpleSearchMaxMatches = 200

func (simpleSearchTool) Definition() Definition {
	return Definition{
		Name:        "simple_search",
		Description: "Plain substring search across workspace files, used when ripgrep is unavailable.",
		Capability:  CapabilityCodeSearch,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"path":  map[string]any{"type": "string"},
			},
			"required": []any{"query"},
		},
	}
}

func (simpleSearchTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args simpleSearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	root, err := ws.Resolve(args.Path)
	if err != nil {
		return nil, err
	}

	var matches []grepMatch
	truncated := false
	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			if ws.Ignore.Matches(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if ws.Ignore.Matches(info.Name()) || isProbablyBinary(path) {
			return nil
		}
		if len(matches) >= simpleSearchMaxMatches {
			truncated = true
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if strings.Contains(scanner.Text(), args.Query) {
				rel, _ := filepath.Rel(root, path)
				matches = append(matches, grepMatch{File: rel, Line: lineNo, Text: scanner.Text()})
				if len(matches) >= simpleSearchMaxMatches {
					truncated = true
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != ctx.Err() {
		return nil, fmt.Errorf("simple_search: %w", walkErr)
	}
	return map[string]any{"matches": matches, "truncated": truncated}, nil
}

func isProbablyBinary(path string) bool {
	switch filepath.Ext(path) {
	case ".png", ".jpg", ".jpeg", ".gif", ".pdf", ".zip", ".gz", ".tar", ".exe", ".bin", ".so", ".dylib":
		return true
	}
	return false
}

// --- file_metadata ---

type fileMetadataTool struct{}

func (fileMetadataTool) Definition() Definition {
	return Definition{
		Name:        "file_metadata",
		Description: "Return size, modification time, and permissions for a workspace file.",
		Capability:  CapabilityFileReading,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []any{"path"},
		},
	}
}

func (fileMetadataTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args readFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	path, err := ws.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file_metadata: %w", err)
	}
	return map[string]any{
		"path":         args.Path,
		"size_bytes":   info.Size(),
		"modified_at":  info.ModTime().Format(time.RFC3339),
		"is_dir":       info.IsDir(),
		"permissions":  info.Mode().Perm().String(),
	}, nil
}

// --- project_overview ---

type projectOverviewTool struct{}

func (projectOverviewTool) Definition() Definition {
	return Definition{
		Name:        "project_overview",
		Description: "Summarize the workspace: top-level entries, file count and extension histogram.",
		Capability:  CapabilityFileListing,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (projectOverviewTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	topEntries, err := os.ReadDir(ws.Root)
	if err != nil {
		return nil, fmt.Errorf("project_overview: %w", err)
	}
	var top []string
	for _, e := range topEntries {
		if ws.Ignore.Matches(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		top = append(top, e.Name())
	}
	sort.Strings(top)

	extCounts := map[string]int{}
	fileCount := 0
	_ = filepath.Walk(ws.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if ws.Ignore.Matches(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if ws.Ignore.Matches(info.Name()) {
			return nil
		}
		fileCount++
		ext := filepath.Ext(info.Name())
		if ext == "" {
			ext = "(none)"
		}
		extCounts[ext]++
		return nil
	})

	return map[string]any{
		"root":         ws.Root,
		"top_entries":  top,
		"file_count":   fileCount,
		"by_extension": extCounts,
	}, nil
}

// --- tree_sitter_analyze ---
//
// No tree-sitter Go binding appears anywhere in the example pack (CGo
// bindings are a poor fit for a dependency set otherwise free of cgo), so
// this is a stdlib-only heuristic: brace/indent-based function and type
// boundary detection per file extension, not a real parse tree. It is
// deliberately named "analyze" rather than "parse" to keep that honest.
type treeSitterAnalyzeTool struct{}

type treeSitterArgs struct {
	Path string `json:"path"`
}

func (treeSitterAnalyzeTool) Definition() Definition {
	return Definition{
		Name:        "tree_sitter_analyze",
		Description: "Heuristically list top-level function and type declarations in a source file (line-based, not a full parse).",
		Capability:  CapabilityCodeSearch,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []any{"path"},
		},
	}
}

var treeSitterDeclPrefixes = map[string][]string{
	".go":   {"func ", "type ", "const ", "var "},
	".py":   {"def ", "class "},
	".rs":   {"fn ", "struct ", "enum ", "impl ", "trait "},
	".ts":   {"function ", "class ", "interface ", "export function ", "export class "},
	".js":   {"function ", "class "},
}

func (treeSitterAnalyzeTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args treeSitterArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	path, err := ws.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	prefixes, ok := treeSitterDeclPrefixes[filepath.Ext(path)]
	if !ok {
		prefixes = treeSitterDeclPrefixes[".go"]
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tree_sitter_analyze: %w", err)
	}
	defer f.Close()

	type decl struct {
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var decls []decl
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		trimmed := strings.TrimLeft(scanner.Text(), " \t")
		for _, p := range prefixes {
			if strings.HasPrefix(trimmed, p) {
				decls = append(decls, decl{Line: lineNo, Text: strings.TrimSpace(scanner.Text())})
				break
			}
		}
	}
	return map[string]any{"path": args.Path, "declarations": decls}, nil
}
