package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// astGrepTool wraps the external ast-grep ("sg") binary, grounded on
// original_source/vtagent-core/src/ast_grep.rs and
// vtagent-core/src/tools/ast_grep_tool.rs: a single tool with an "op"
// field dispatching to one of ast-grep's subcommands, rather than five
// separate tool declarations.
type astGrepTool struct{}

type astGrepArgs struct {
	Op       string `json:"op"` // search | transform | lint | refactor | custom
	Pattern  string `json:"pattern"`
	Rewrite  string `json:"rewrite"`
	Path     string `json:"path"`
	Language string `json:"language"`
	RuleFile string `json:"rule_file"`
	RawArgs  string `json:"raw_args"` // extra args for op == "custom"
}

func (astGrepTool) Definition() Definition {
	return Definition{
		Name: "ast_grep_search",
		Description: "Structural code search/transform via ast-grep. op selects search (find a pattern), " +
			"transform (pattern+rewrite), lint (rule_file), refactor (alias for transform), or custom (raw_args).",
		Capability: CapabilityCodeSearch,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"op":        map[string]any{"type": "string", "enum": []any{"search", "transform", "lint", "refactor", "custom"}},
				"pattern":   map[string]any{"type": "string"},
				"rewrite":   map[string]any{"type": "string"},
				"path":      map[string]any{"type": "string"},
				"language":  map[string]any{"type": "string"},
				"rule_file": map[string]any{"type": "string"},
				"raw_args":  map[string]any{"type": "string"},
			},
			"required": []any{"op"},
		},
	}
}

func (astGrepTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args astGrepArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	dir := ws.Root
	if args.Path != "" {
		resolved, err := ws.Resolve(args.Path)
		if err != nil {
			return nil, err
		}
		dir = resolved
	}

	cmdArgs, err := buildAstGrepArgs(args, dir)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "sg", cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := map[string]any{
		"op":     args.Op,
		"output": stdout.String(),
	}
	if runErr != nil {
		result["error"] = fmt.Sprintf("%v: %s", runErr, stderr.String())
	}
	return result, nil
}

func buildAstGrepArgs(args astGrepArgs, dir string) ([]string, error) {
	switch args.Op {
	case "search":
		if args.Pattern == "" {
			return nil, fmt.Errorf("ast_grep_search: search requires pattern")
		}
		cmdArgs := []string{"run", "--pattern", args.Pattern, "--json"}
		if args.Language != "" {
			cmdArgs = append(cmdArgs, "--lang", args.Language)
		}
		return append(cmdArgs, dir), nil
	case "transform", "refactor":
		if args.Pattern == "" || args.Rewrite == "" {
			return nil, fmt.Errorf("ast_grep_search: %s requires pattern and rewrite", args.Op)
		}
		cmdArgs := []string{"run", "--pattern", args.Pattern, "--rewrite", args.Rewrite, "--update-all"}
		if args.Language != "" {
			cmdArgs = append(cmdArgs, "--lang", args.Language)
		}
		return append(cmdArgs, dir), nil
	case "lint":
		if args.RuleFile == "" {
			return nil, fmt.Errorf("ast_grep_search: lint requires rule_file")
		}
		return []string{"scan", "--rule", args.RuleFile, "--json", dir}, nil
	case "custom":
		if args.RawArgs == "" {
			return nil, fmt.Errorf("ast_grep_search: custom requires raw_args")
		}
		return append(splitShellWords(args.RawArgs), dir), nil
	default:
		return nil, fmt.Errorf("ast_grep_search: unknown op %q", args.Op)
	}
}

// splitShellWords does minimal whitespace splitting; ast-grep's custom op
// does not accept quoting or pipes, so no shell is ever invoked.
func splitShellWords(s string) []string {
	var words []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, c)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}
