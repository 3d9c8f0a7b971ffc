// Package mcp implements the MCP (Model Context Protocol) sub-client:
// it spawns the external tool-server processes declared in config,
// performs the MCP handshake, and routes mcp_<server>_<tool> calls to the
// right child, following the stdio-client shape grounded on
// github.com/mark3labs/mcp-go as used by
// _examples/kadirpekel-hector/pkg/tool/mcptoolset and the mcphost agent
// tool manager in other_examples/.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"godex-agent/pkg/tools"
)

// ServerConfig describes one configured MCP tool server.
type ServerConfig struct {
	Name                  string
	Command               string
	Args                  []string
	Env                   map[string]string
	MaxConcurrentRequests int // 0 means unlimited
}

// Config is the sub-client's overall configuration.
type Config struct {
	Enabled         bool
	Servers         []ServerConfig
	InitTimeout     time.Duration // default 30s
}

const defaultInitTimeout = 30 * time.Second

// provider is one live (or dead) connection to a configured server.
type provider struct {
	name    string
	client  *mcpclient.Client
	tools   []mcp.Tool
	sem     chan struct{} // concurrency cap, nil means unbounded
	mu      sync.Mutex
	alive   bool
}

// SubClient aggregates every configured MCP provider and implements
// tools.McpExecutor.
type SubClient struct {
	mu        sync.Mutex
	providers map[string]*provider
}

// New spawns every enabled server in cfg, performing the MCP handshake
// for each. Per spec.md §4.8: a pipe/process error during initialization
// is logged at debug level and that provider is simply skipped, not
// treated as a fatal error for the whole sub-client.
func New(ctx context.Context, cfg Config) *SubClient {
	sc := &SubClient{providers: map[string]*provider{}}
	if !cfg.Enabled {
		return sc
	}
	timeout := cfg.InitTimeout
	if timeout <= 0 {
		timeout = defaultInitTimeout
	}
	for _, s := range cfg.Servers {
		p, err := connectStdio(ctx, s, timeout)
		if err != nil {
			if isBenignProcessError(err) {
				slog.Debug("mcp: provider init failed with a benign process error, continuing without it", "server", s.Name, "error", err)
				continue
			}
			slog.Warn("mcp: provider init failed, continuing without it", "server", s.Name, "error", err)
			continue
		}
		sc.mu.Lock()
		sc.providers[s.Name] = p
		sc.mu.Unlock()
	}
	return sc
}

func connectStdio(parent context.Context, s ServerConfig, timeout time.Duration) (*provider, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	env := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}

	c, err := mcpclient.NewStdioMCPClient(s.Command, env, s.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: create client for %s: %w", s.Name, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", s.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "godex-agent", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize %s: %w", s.Name, err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: list tools for %s: %w", s.Name, err)
	}

	var sem chan struct{}
	if s.MaxConcurrentRequests > 0 {
		sem = make(chan struct{}, s.MaxConcurrentRequests)
	}

	return &provider{name: s.Name, client: c, tools: listResp.Tools, sem: sem, alive: true}, nil
}

func isBenignProcessError(err error) bool {
	text := strings.ToLower(err.Error())
	for _, needle := range []string{"epipe", "esrch", "no such process", "broken pipe"} {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

// ToolDefinitions returns every provider's advertised tools as
// tools.Definition, namespaced mcp_<server>_<tool>. Providers are visited
// in map order, so the order of tools across providers is not fixed; the
// caller, tools.Registry, appends these after its own declarations.
func (sc *SubClient) ToolDefinitions() []tools.Definition {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	var out []tools.Definition
	for _, p := range sc.providers {
		p.mu.Lock()
		alive := p.alive
		p.mu.Unlock()
		if !alive {
			continue
		}
		for _, mt := range p.tools {
			out = append(out, tools.Definition{
				Name:        namespacedName(p.name, mt.Name),
				Description: fmt.Sprintf("MCP tool from provider '%s': %s", p.name, mt.Description),
				Parameters:  convertSchema(mt.InputSchema),
			})
		}
	}
	return out
}

func namespacedName(server, tool string) string {
	return "mcp_" + server + "_" + tool
}

// splitNamespacedName reverses namespacedName; it requires the server
// name itself to contain no underscores, matching how servers are named
// in config.
func splitNamespacedName(name string) (server, tool string, ok bool) {
	rest := strings.TrimPrefix(name, "mcp_")
	if rest == name {
		return "", "", false
	}
	idx := strings.Index(rest, "_")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	buf, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(buf, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// ExecuteTool routes a mcp_<server>_<tool> call to its provider, applying
// that provider's concurrency cap. Errors are returned as a structured
// {ok:false, error} value rather than a Go error, per spec.md §4.8, so
// the run loop can surface them to the model as an ordinary tool result.
func (sc *SubClient) ExecuteTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	serverName, toolName, ok := splitNamespacedName(name)
	if !ok {
		return map[string]any{"ok": false, "error": fmt.Sprintf("malformed mcp tool name %q", name)}, nil
	}

	sc.mu.Lock()
	p, ok := sc.providers[serverName]
	sc.mu.Unlock()
	if !ok {
		return map[string]any{"ok": false, "error": fmt.Sprintf("unknown mcp provider %q", serverName)}, nil
	}

	p.mu.Lock()
	alive := p.alive
	p.mu.Unlock()
	if !alive {
		return map[string]any{"ok": false, "error": fmt.Sprintf("mcp provider %q is no longer connected", serverName)}, nil
	}

	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var decodedArgs map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decodedArgs); err != nil {
			return map[string]any{"ok": false, "error": err.Error()}, nil
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = decodedArgs

	resp, err := p.client.CallTool(ctx, req)
	if err != nil {
		if isBenignProcessError(err) {
			p.mu.Lock()
			p.alive = false
			p.mu.Unlock()
		}
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}
	return parseCallResult(resp), nil
}

func parseCallResult(resp *mcp.CallToolResult) any {
	if resp == nil {
		return map[string]any{"ok": true, "content": nil}
	}
	var texts []string
	for _, c := range resp.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
		}
	}
	return map[string]any{
		"ok":       !resp.IsError,
		"content":  strings.Join(texts, "\n"),
		"is_error": resp.IsError,
	}
}

// CleanupDeadProviders reaps providers whose stdio has closed, closing
// their client handle and removing them from the routing table.
func (sc *SubClient) CleanupDeadProviders() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for name, p := range sc.providers {
		p.mu.Lock()
		alive := p.alive
		p.mu.Unlock()
		if !alive {
			p.client.Close()
			delete(sc.providers, name)
		}
	}
}

// Shutdown closes every provider, cooperatively first (Close, which sends
// the MCP shutdown sequence where supported) and then, if a provider does
// not stop within grace, the owning process is reaped by the client's own
// Close regardless — mcp-go does not expose a separate force-kill hook,
// so "forceful" here means not waiting past the grace period before
// moving on to the next provider.
func (sc *SubClient) Shutdown(grace time.Duration) {
	sc.mu.Lock()
	providers := make([]*provider, 0, len(sc.providers))
	for _, p := range sc.providers {
		providers = append(providers, p)
	}
	sc.providers = map[string]*provider{}
	sc.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p *provider) {
			defer wg.Done()
			done := make(chan struct{})
			go func() {
				p.client.Close()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(grace):
			}
		}(p)
	}
	wg.Wait()
}
