package tools

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreSet is a small .gitignore-aware filter consulted by list_files,
// simple_search and project_overview (grep_search leaves ignoring to
// ripgrep) so the agent does not walk .git, node_modules, and friends
// by default. Supplemented from original_source/vtagent-core's
// vtagentgitignore.rs — patterns are plain filepath.Match globs, not a
// full gitignore implementation.
type IgnoreSet struct {
	patterns []string
}

var defaultIgnorePatterns = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "target", "dist", "build",
	".vtcode", ".godex-agent",
	"*.pyc", "__pycache__",
}

// LoadIgnoreSet reads root/.gitignore (if present) and merges it with the
// built-in default patterns.
func LoadIgnoreSet(root string) *IgnoreSet {
	set := &IgnoreSet{patterns: append([]string{}, defaultIgnorePatterns...)}
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return set
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set.patterns = append(set.patterns, strings.TrimSuffix(strings.TrimPrefix(line, "/"), "/"))
	}
	return set
}

// Matches reports whether name (a path element, not a full path) matches
// any ignore pattern.
func (s *IgnoreSet) Matches(name string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
