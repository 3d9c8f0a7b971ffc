package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// applyPatchTool implements the Codex patch format whose grammar lives in
// pkg/harness/codex.ApplyPatchLarkGrammar ("*** Begin Patch" / "*** Add
// File:" / "*** Delete File:" / "*** Update File:" hunks). The grammar
// constant is the wire-level tool spec handed to the model; this is the
// hand-rolled recursive-descent reader that applies it, since the Lark
// grammar has no Go binding in the pack.
type applyPatchTool struct{}

type applyPatchArgs struct {
	Patch string `json:"patch"`
}

func (applyPatchTool) Definition() Definition {
	return Definition{
		Name:        "apply_patch",
		Description: "Apply a patch in the Codex patch format (*** Begin Patch / Add File / Delete File / Update File hunks).",
		Capability:  CapabilityEditing,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"patch": map[string]any{"type": "string"}},
			"required":   []any{"patch"},
		},
	}
}

func (applyPatchTool) Execute(ctx context.Context, ws *Workspace, raw json.RawMessage) (any, error) {
	var args applyPatchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	hunks, err := parsePatch(args.Patch)
	if err != nil {
		return nil, fmt.Errorf("apply_patch: %w", err)
	}

	var applied []string
	for _, h := range hunks {
		path, err := ws.Resolve(h.path)
		if err != nil {
			return nil, err
		}
		switch h.kind {
		case patchAdd:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("apply_patch: %w", err)
			}
			if err := os.WriteFile(path, []byte(strings.Join(h.addLines, "\n")), 0o644); err != nil {
				return nil, fmt.Errorf("apply_patch: %w", err)
			}
		case patchDelete:
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("apply_patch: %w", err)
			}
		case patchUpdate:
			if err := applyUpdateHunk(path, h); err != nil {
				return nil, fmt.Errorf("apply_patch: %w", err)
			}
		}
		applied = append(applied, h.path)
	}
	return map[string]any{"files": applied}, nil
}

type patchKind int

const (
	patchAdd patchKind = iota
	patchDelete
	patchUpdate
)

type patchHunk struct {
	kind     patchKind
	path     string
	moveTo   string
	addLines []string
	changes  []patchLine // for update hunks: context/add/delete lines, in order
}

type patchLine struct {
	op   byte // ' ', '+', '-'
	text string
}

// parsePatch reads the "*** Begin Patch" / "*** End Patch" envelope and
// splits it into per-file hunks. It intentionally accepts a slightly
// looser grammar than the Lark definition (trailing whitespace, missing
// final "*** End Patch") since models are not perfectly compliant.
func parsePatch(src string) ([]patchHunk, error) {
	lines := strings.Split(src, "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || strings.TrimSpace(lines[i]) != "*** Begin Patch" {
		return nil, fmt.Errorf("missing '*** Begin Patch' header")
	}
	i++

	var hunks []patchHunk
	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.TrimSpace(line) == "*** End Patch":
			return hunks, nil
		case strings.HasPrefix(line, "*** Add File: "):
			h := patchHunk{kind: patchAdd, path: strings.TrimPrefix(line, "*** Add File: ")}
			i++
			for i < len(lines) && strings.HasPrefix(lines[i], "+") {
				h.addLines = append(h.addLines, strings.TrimPrefix(lines[i], "+"))
				i++
			}
			hunks = append(hunks, h)
		case strings.HasPrefix(line, "*** Delete File: "):
			hunks = append(hunks, patchHunk{kind: patchDelete, path: strings.TrimPrefix(line, "*** Delete File: ")})
			i++
		case strings.HasPrefix(line, "*** Update File: "):
			h := patchHunk{kind: patchUpdate, path: strings.TrimPrefix(line, "*** Update File: ")}
			i++
			if i < len(lines) && strings.HasPrefix(lines[i], "*** Move to: ") {
				h.moveTo = strings.TrimPrefix(lines[i], "*** Move to: ")
				i++
			}
			for i < len(lines) {
				l := lines[i]
				if strings.HasPrefix(l, "*** ") || strings.TrimSpace(l) == "" && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "*** ") {
					break
				}
				if l == "" {
					i++
					continue
				}
				switch l[0] {
				case '@':
					i++
				case '+', '-', ' ':
					h.changes = append(h.changes, patchLine{op: l[0], text: l[1:]})
					i++
				default:
					i++
				}
			}
			hunks = append(hunks, h)
		default:
			i++
		}
	}
	return hunks, fmt.Errorf("missing '*** End Patch' trailer")
}

// applyUpdateHunk rewrites the target file by walking its current content
// alongside the hunk's context/add/delete lines: context lines must match
// in order, delete lines are dropped, add lines are inserted.
func applyUpdateHunk(path string, h patchHunk) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	existing := strings.Split(string(buf), "\n")
	var out []string
	pos := 0
	for _, ch := range h.changes {
		switch ch.op {
		case ' ':
			for pos < len(existing) && existing[pos] != ch.text {
				out = append(out, existing[pos])
				pos++
			}
			if pos < len(existing) {
				out = append(out, existing[pos])
				pos++
			}
		case '-':
			for pos < len(existing) && existing[pos] != ch.text {
				out = append(out, existing[pos])
				pos++
			}
			if pos < len(existing) {
				pos++
			}
		case '+':
			out = append(out, ch.text)
		}
	}
	out = append(out, existing[pos:]...)

	target := path
	if h.moveTo != "" {
		moved, err := filepath.Abs(filepath.Join(filepath.Dir(path), h.moveTo))
		if err != nil {
			return err
		}
		target = moved
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(target, []byte(strings.Join(out, "\n")), 0o644); err != nil {
		return err
	}
	if h.moveTo != "" && target != path {
		return os.Remove(path)
	}
	return nil
}
