// Package tools implements the native tool registry: name-keyed dispatch
// over a heterogeneous set of filesystem, search, and shell tools, with
// per-tool JSON-schema validation and capability-level filtering.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"godex-agent/pkg/schema"
)

// CapabilityLevel controls which tool declarations are surfaced to the model.
type CapabilityLevel int

const (
	CapabilityBasic CapabilityLevel = iota
	CapabilityFileReading
	CapabilityFileListing
	CapabilityBash
	CapabilityEditing
	CapabilityCodeSearch
)

// ResponseFormat selects between a compact, model-facing result and the
// full structured result.
type ResponseFormat string

const (
	FormatConcise  ResponseFormat = "concise"
	FormatDetailed ResponseFormat = "detailed"
)

// Definition describes a tool as surfaced to the model: name, description,
// and a JSON-schema-shaped parameter object.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Capability  CapabilityLevel
}

// Handler executes one tool given its canonicalized workspace root and
// raw JSON arguments, returning a JSON-serializable result.
type Handler interface {
	Definition() Definition
	Execute(ctx context.Context, ws *Workspace, args json.RawMessage) (any, error)
}

// Registry is the name→tool dispatch layer. After construction it changes
// only through ApplyConfigPolicies and WithMCPClient, under mu; each
// Handler is responsible for synchronizing its own internal state (e.g.
// the grep debouncer).
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	schemas   map[string]*jsonschema.Schema
	ws        *Workspace
	mcp       McpExecutor
	mcpTools  []Definition
}

// McpExecutor is the subset of the MCP sub-client the registry needs to
// route mcp_<server>_<tool> calls and list MCP-sourced declarations.
type McpExecutor interface {
	ExecuteTool(ctx context.Context, name string, args json.RawMessage) (any, error)
	ToolDefinitions() []Definition
}

// NewRegistry builds a registry with the default built-in tool set rooted
// at ws. Construction normalizes every tool's parameter schema through
// schema.NormalizeStrictSchemaNode before compiling it, exactly as the
// teacher does for Codex's strict function-calling tools.
func NewRegistry(ws *Workspace) (*Registry, error) {
	r := &Registry{
		handlers: map[string]Handler{},
		schemas:  map[string]*jsonschema.Schema{},
		ws:       ws,
	}
	for _, h := range defaultHandlers(ws) {
		if err := r.register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(h Handler) error {
	def := h.Definition()
	if def.Name == "" {
		return fmt.Errorf("tools: handler with empty name")
	}
	normalized, _ := schema.NormalizeStrictSchemaNode(def.Parameters).(map[string]any)
	if normalized == nil {
		normalized = def.Parameters
	}
	compiled, err := compileSchema(def.Name, normalized)
	if err != nil {
		return fmt.Errorf("tools: compile schema for %s: %w", def.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = h
	r.schemas[def.Name] = compiled
	return nil
}

// ApplyConfigPolicies removes the named tools from dispatch and declaration
// entirely, per spec.md §4.3's `apply_config_policies(cfg)` registry
// operation. Unlike the per-call approve/deny/prompt decisions in pkg/policy
// (session-scoped, interactive, persisted across runs), this is a
// configuration-time restriction: a disabled tool is invisible to the model
// and Execute rejects it as unknown, regardless of any policy decision.
// Disabling is permanent for the registry's lifetime; there is no re-enable.
func (r *Registry) ApplyConfigPolicies(disabledTools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range disabledTools {
		delete(r.handlers, name)
		delete(r.schemas, name)
	}
}

// WithMCPClient attaches an MCP executor whose tools are merged into the
// declaration list after native tools, under the mcp_<server>_<tool>
// namespace. Calling it again replaces the previous executor.
func (r *Registry) WithMCPClient(mcp McpExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcp = mcp
	if mcp != nil {
		r.mcpTools = mcp.ToolDefinitions()
	} else {
		r.mcpTools = nil
	}
}

// AvailableTools returns every known tool name, native then MCP, sorted
// within each group.
func (r *Registry) AvailableTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers)+len(r.mcpTools))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	mcpNames := make([]string, 0, len(r.mcpTools))
	for _, d := range r.mcpTools {
		mcpNames = append(mcpNames, d.Name)
	}
	sort.Strings(mcpNames)
	return append(names, mcpNames...)
}

// FunctionDeclarations returns tool declarations filtered to the given
// capability level (native tools only use the level; MCP tools are always
// included since the operator explicitly configured the server).
func (r *Registry) FunctionDeclarations(level CapabilityLevel) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Definition
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := r.handlers[name].Definition()
		if d.Capability <= level {
			out = append(out, d)
		}
	}
	out = append(out, r.mcpTools...)
	return out
}

// ErrUnknownTool is returned (wrapped with the tool name) when Execute is
// asked to dispatch to a tool the registry has never heard of.
var ErrUnknownTool = fmt.Errorf("unknown tool")

// Execute validates args against the tool's compiled schema and dispatches
// to its Handler. MCP-prefixed names are routed to the attached executor.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	compiled := r.schemas[name]
	mcp := r.mcp
	r.mu.RUnlock()

	if !ok {
		if mcp != nil && isMcpToolName(name) {
			return mcp.ExecuteTool(ctx, name, args)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if compiled != nil {
		var decoded any
		if len(args) > 0 {
			if err := json.Unmarshal(args, &decoded); err != nil {
				return nil, fmt.Errorf("tools: %s: invalid arguments json: %w", name, err)
			}
		} else {
			decoded = map[string]any{}
		}
		if err := compiled.Validate(decoded); err != nil {
			return nil, fmt.Errorf("tools: %s: argument validation failed: %w", name, err)
		}
	}

	return h.Execute(ctx, r.ws, args)
}

func isMcpToolName(name string) bool {
	return len(name) > 4 && name[:4] == "mcp_"
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		return nil, nil
	}
	buf, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "mem://tools/" + name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
