package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathOutsideWorkspace is returned when a tool's path argument
// canonicalizes to a location outside the workspace root.
var ErrPathOutsideWorkspace = errors.New("path_outside_workspace")

// Workspace holds the canonical workspace root every path-taking tool
// resolves against, plus the gitignore-style ignore set consulted by
// list_files, simple_search and project_overview.
type Workspace struct {
	Root   string
	Ignore *IgnoreSet
}

// NewWorkspace canonicalizes root (resolving symlinks) and loads any
// .gitignore patterns found at its top level.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("tools: resolve workspace root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("tools: resolve workspace root: %w", err)
	}
	return &Workspace{Root: real, Ignore: LoadIgnoreSet(real)}, nil
}

// Resolve canonicalizes a (possibly relative) path argument against the
// workspace root and enforces that the result is a descendant of it.
// Relative paths are resolved against Root; absolute paths are
// canonicalized and checked directly.
func (w *Workspace) Resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	var joined string
	if filepath.IsAbs(path) {
		joined = filepath.Clean(path)
	} else {
		joined = filepath.Clean(filepath.Join(w.Root, path))
	}

	// Resolve symlinks where possible; a not-yet-existing file (e.g. a
	// write_file target) falls back to lexical cleaning of its parent.
	resolved := joined
	if real, err := filepath.EvalSymlinks(joined); err == nil {
		resolved = real
	} else if parent, perr := filepath.EvalSymlinks(filepath.Dir(joined)); perr == nil {
		resolved = filepath.Join(parent, filepath.Base(joined))
	}

	if !isDescendant(w.Root, resolved) {
		return "", ErrPathOutsideWorkspace
	}
	return resolved, nil
}

func isDescendant(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)
	if candidate == root {
		return true
	}
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
