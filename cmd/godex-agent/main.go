// Command godex-agent is the interactive terminal coding agent: a chat
// loop over a workspace, gated by tool policy and workspace trust, backed
// by a pluggable model provider.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"godex-agent/pkg/agentloop"
	"godex-agent/pkg/aliases"
	"godex-agent/pkg/auth"
	"godex-agent/pkg/backend"
	backendAnth "godex-agent/pkg/backend/anthropic"
	"godex-agent/pkg/backend/openapi"
	"godex-agent/pkg/config"
	"godex-agent/pkg/harness"
	harnessClaudeP "godex-agent/pkg/harness/claude"
	harnessCodexP "godex-agent/pkg/harness/codex"
	harnessOpenaiP "godex-agent/pkg/harness/openai"
	"godex-agent/pkg/ledger"
	"godex-agent/pkg/mcp"
	"godex-agent/pkg/metrics"
	"godex-agent/pkg/policy"
	"godex-agent/pkg/retry"
	"godex-agent/pkg/tools"
	"godex-agent/pkg/trajectory"
	"godex-agent/pkg/trust"
)

// Version is set at build time.
var Version = "dev"

// Exit codes, per spec.md §6.
const (
	exitOK          = 0
	exitFatalInit   = 1
	exitTrustAbort  = 2
	exitInterrupted = 130
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	if len(args) == 0 {
		return runChat(nil)
	}
	switch args[0] {
	case "--version", "version", "-v":
		fmt.Println(Version)
		return exitOK, nil
	case "chat":
		return runChat(args[1:])
	case "models":
		return runModels(args[1:])
	default:
		// Bare flags (e.g. `--full-auto`) with no subcommand still mean chat.
		if strings.HasPrefix(args[0], "-") {
			return runChat(args)
		}
		usage()
		return exitFatalInit, fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: godex-agent [chat] [--full-auto] [--workspace <dir>] [--model <name>]
       godex-agent models list|set-provider <p>|set-model <m>|config <p>|test <p>|stats|sync-aliases
       godex-agent --version`)
}

func runChat(args []string) (int, error) {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	cfg := config.LoadFrom(config.DefaultPath())

	workspace := fs.String("workspace", ".", "Workspace root directory")
	model := fs.String("model", cfg.Agent.Model, "Model name")
	provider := fs.String("provider", cfg.Agent.Provider, "Provider: codex|claude|openai")
	fullAuto := fs.Bool("full-auto", cfg.Agent.FullAuto, "Request full-auto trust escalation for this session")
	reasoningEffort := fs.String("reasoning-effort", cfg.Agent.ReasoningEffort, "Reasoning effort: low|medium|high")
	systemPrompt := fs.String("system", "", "Append to the default system prompt")

	if err := fs.Parse(args); err != nil {
		return exitFatalInit, err
	}
	cfg.Agent.Model = *model
	cfg.Agent.Provider = *provider
	cfg.Agent.FullAuto = *fullAuto
	cfg.Agent.ReasoningEffort = *reasoningEffort

	root, err := filepath.Abs(*workspace)
	if err != nil {
		return exitFatalInit, fmt.Errorf("resolve workspace: %w", err)
	}

	trustOutcome, err := ensureTrust(root, cfg.Agent.FullAuto)
	if err != nil {
		return exitFatalInit, fmt.Errorf("trust gate: %w", err)
	}
	if !trustOutcome.Trusted {
		fmt.Fprintln(os.Stderr, "workspace not trusted; exiting")
		return exitTrustAbort, nil
	}

	provHarness, err := buildProvider(cfg)
	if err != nil {
		return exitFatalInit, fmt.Errorf("build provider: %w", err)
	}

	ws, err := tools.NewWorkspace(root)
	if err != nil {
		return exitFatalInit, fmt.Errorf("open workspace: %w", err)
	}
	registry, err := tools.NewRegistry(ws)
	if err != nil {
		return exitFatalInit, fmt.Errorf("build tool registry: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.Agent.MCPServers) > 0 {
		sub := mcp.New(ctx, mcp.Config{Enabled: true, Servers: toMCPServers(cfg.Agent.MCPServers)})
		registry.WithMCPClient(sub)
		defer sub.Shutdown(5 * time.Second)
	}

	registry.ApplyConfigPolicies(cfg.Agent.DisabledTools)

	polPath, err := policy.DefaultPath()
	if err != nil {
		return exitFatalInit, fmt.Errorf("resolve policy path: %w", err)
	}
	polStore, err := policy.Load(polPath)
	if err != nil {
		return exitFatalInit, fmt.Errorf("load policy: %w", err)
	}
	if err := polStore.UpdateAvailableTools(registry.AvailableTools()); err != nil {
		return exitFatalInit, fmt.Errorf("sync policy tool list: %w", err)
	}
	if trustOutcome.Level == trust.LevelFullAuto {
		polStore.SetFullAutoAllowlist(registry.AvailableTools())
	}

	dl, err := ledger.New(filepath.Join(config.ConfigDir(), "decisions.jsonl"))
	if err != nil {
		return exitFatalInit, fmt.Errorf("open decision ledger: %w", err)
	}
	defer dl.Close()

	traj, err := trajectory.Open(root, sessionID())
	if err != nil {
		return exitFatalInit, fmt.Errorf("open trajectory log: %w", err)
	}

	metricsCollector, err := metrics.NewCollector(metrics.Config{
		Enabled:     true,
		Path:        filepath.Join(config.ConfigDir(), "metrics.jsonl"),
		LogRequests: true,
	})
	if err != nil {
		return exitFatalInit, fmt.Errorf("open metrics collector: %w", err)
	}
	defer metricsCollector.Close()

	sess := agentloop.New(agentloop.Deps{
		Provider:   provHarness,
		Tools:      registry,
		Policy:     polStore,
		Retry:      retry.NewEngine(),
		PromptTool: terminalPrompt,
		Ledger:     dl,
		Trajectory: traj,
		Metrics:    metricsCollector,
	}, agentloop.Config{
		Model:        cfg.Agent.Model,
		SystemPrompt: buildSystemPrompt(*systemPrompt),
		Capability:   capabilityFor(trustOutcome.Level),
		Environment: &harness.EnvironmentCtx{
			WorkingDir: root,
			Shell:      os.Getenv("SHELL"),
			Sandbox:    "none",
		},
		Reasoning:          reasoningConfig(cfg.Agent.ReasoningEffort),
		MaxSessionTurns:    cfg.Agent.MaxSessionTurns,
		MaxSessionDuration: cfg.Agent.MaxSessionDuration,
		ModelForClass:      cfg.Agent.ModelForClass,
	})

	traj.LogSessionStart(map[string]string{"model": cfg.Agent.Model, "provider": cfg.Agent.Provider, "trust_level": trustOutcome.Level.String()})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if sess.Interrupt() {
				cancel()
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	nextLine := func() (string, bool) {
		fmt.Print("> ")
		if !scanner.Scan() {
			return "", false
		}
		return scanner.Text(), true
	}

	summary, err := sess.RunSession(ctx, nextLine)
	traj.LogSessionEnd(map[string]any{"turns": summary.TurnsTaken, "reason": summary.Reason})

	if err != nil {
		var fatal *agentloop.FatalError
		if errors.As(err, &fatal) {
			return exitFatalInit, fatal
		}
		if ctx.Err() != nil {
			return exitInterrupted, nil
		}
		return exitFatalInit, err
	}
	return exitOK, nil
}

func ensureTrust(root string, fullAuto bool) (trust.Outcome, error) {
	trustPath, err := trust.DefaultPath()
	if err != nil {
		return trust.Outcome{}, err
	}
	store, err := trust.Load(trustPath)
	if err != nil {
		return trust.Outcome{}, err
	}
	return trust.EnsureWorkspaceTrust(store, root, fullAuto, trust.ReaderPrompter(os.Stdin), os.Stderr)
}

func capabilityFor(level trust.Level) tools.CapabilityLevel {
	if level == trust.LevelFullAuto {
		return tools.CapabilityCodeSearch
	}
	return tools.CapabilityEditing
}

func reasoningConfig(effort string) *harness.ReasoningConfig {
	if strings.TrimSpace(effort) == "" {
		return nil
	}
	return &harness.ReasoningConfig{Effort: effort}
}

func buildSystemPrompt(extra string) string {
	base := "You are godex-agent, an interactive coding assistant working inside a single trusted workspace. " +
		"Use the available tools to read, search, and edit files; ask before running anything destructive."
	if strings.TrimSpace(extra) == "" {
		return base
	}
	return base + "\n\n" + extra
}

func terminalPrompt(ctx context.Context, toolName string, args json.RawMessage) (policy.PromptAnswer, error) {
	fmt.Fprintf(os.Stderr, "\nrun %s with %s? [y]es/[n]o/[a]lways/n[e]ver: ", toolName, string(args))
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return policy.AnswerNo, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return policy.AnswerYes, nil
	case "a", "always":
		return policy.AnswerAlways, nil
	case "e", "never":
		return policy.AnswerNever, nil
	default:
		return policy.AnswerNo, nil
	}
}

func sessionID() string {
	return time.Now().UTC().Format("20060102T150405Z")
}

func toMCPServers(cfgs []config.MCPServerConfig) []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, len(cfgs))
	for i, c := range cfgs {
		out[i] = mcp.ServerConfig{Name: c.Name, Command: c.Command, Args: c.Args}
	}
	return out
}

// buildProvider constructs the harness.Harness for cfg.Agent.Provider,
// following the teacher's own per-backend wiring (auth.Store for Codex,
// a TokenStore for Claude, a generic openapi.Client for any OpenAI-
// compatible endpoint).
func buildProvider(cfg config.Config) (harness.Harness, error) {
	switch cfg.Agent.Provider {
	case "", "codex":
		authPath, err := auth.DefaultPath()
		if err != nil {
			return nil, err
		}
		store, err := auth.Load(authPath)
		if err != nil {
			return nil, fmt.Errorf("load codex credentials: %w", err)
		}
		client := harnessCodexP.NewClient(nil, store, harnessCodexP.ClientConfig{
			BaseURL:    cfg.Client.BaseURL,
			Originator: cfg.Client.Originator,
			UserAgent:  cfg.Client.UserAgent,
		})
		return harnessCodexP.New(harnessCodexP.Config{Client: client, DefaultModel: cfg.Agent.Model}), nil

	case "claude":
		credPath := os.Getenv("ANTHROPIC_CREDENTIALS_PATH")
		anthTokens := backendAnth.NewTokenStore(credPath)
		if err := anthTokens.Load(); err != nil {
			return nil, fmt.Errorf("load claude credentials: %w", err)
		}
		wrapper := harnessClaudeP.NewClientWrapper(anthTokens, harnessClaudeP.ClientConfig{})
		return harnessClaudeP.New(harnessClaudeP.Config{Client: wrapper, DefaultModel: cfg.Agent.Model}), nil

	case "openai":
		apiKeyEnv := "OPENAI_API_KEY"
		baseURL := cfg.Client.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		raw, err := openapi.New(openapi.Config{
			Name:      "openai",
			BaseURL:   baseURL,
			Auth:      config.BackendAuthConfig{Type: "api_key", KeyEnv: apiKeyEnv},
			Discovery: true,
		})
		if err != nil {
			return nil, fmt.Errorf("build openai client: %w", err)
		}
		wrapper := harnessOpenaiP.NewClientWrapper(raw)
		return harnessOpenaiP.New(harnessOpenaiP.Config{Client: wrapper, DefaultModel: cfg.Agent.Model}), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Agent.Provider)
	}
}

func runModels(args []string) (int, error) {
	if len(args) == 0 {
		usage()
		return exitFatalInit, errors.New("models subcommand required")
	}

	cfgPath := config.DefaultPath()
	cfg := config.LoadFrom(cfgPath)

	switch args[0] {
	case "list":
		prov, err := buildProvider(cfg)
		if err != nil {
			return exitFatalInit, err
		}
		models, err := prov.ListModels(context.Background())
		if err != nil {
			return exitFatalInit, err
		}
		for _, m := range models {
			fmt.Printf("%s\t%s\n", m.ID, m.Name)
		}
		return exitOK, nil

	case "set-provider":
		if len(args) < 2 {
			return exitFatalInit, errors.New("usage: models set-provider <provider>")
		}
		cfg.Agent.Provider = args[1]
		return exitOK, saveAgentConfig(cfgPath, cfg)

	case "set-model":
		if len(args) < 2 {
			return exitFatalInit, errors.New("usage: models set-model <model>")
		}
		cfg.Agent.Model = args[1]
		return exitOK, saveAgentConfig(cfgPath, cfg)

	case "config":
		if len(args) < 2 {
			return exitFatalInit, errors.New("usage: models config <provider> [--api-key ...] [--base-url ...] [--model ...]")
		}
		fs := flag.NewFlagSet("models config", flag.ContinueOnError)
		model := fs.String("model", "", "Default model for this provider")
		baseURL := fs.String("base-url", "", "Base URL override")
		if err := fs.Parse(args[2:]); err != nil {
			return exitFatalInit, err
		}
		cfg.Agent.Provider = args[1]
		if *model != "" {
			cfg.Agent.Model = *model
		}
		if *baseURL != "" {
			cfg.Client.BaseURL = *baseURL
		}
		return exitOK, saveAgentConfig(cfgPath, cfg)

	case "test":
		if len(args) < 2 {
			return exitFatalInit, errors.New("usage: models test <provider>")
		}
		cfg.Agent.Provider = args[1]
		prov, err := buildProvider(cfg)
		if err != nil {
			return exitFatalInit, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := prov.ListModels(ctx); err != nil {
			return exitFatalInit, fmt.Errorf("provider %s unreachable: %w", args[1], err)
		}
		fmt.Println("ok")
		return exitOK, nil

	case "stats":
		return runModelStats()

	case "sync-aliases":
		return runModelSyncAliases(cfgPath, cfg)

	default:
		usage()
		return exitFatalInit, fmt.Errorf("unknown models subcommand %q", args[0])
	}
}

// runModelSyncAliases resolves the built-in alias rules (opus/sonnet/haiku/
// gemini/flash) against whichever backends are reachable with the current
// credentials, then persists any changed aliases under
// proxy.backends.routing.aliases.
func runModelSyncAliases(cfgPath string, cfg config.Config) (int, error) {
	backends := map[string]backend.Backend{}

	if client, err := backendAnth.New(backendAnth.Config{
		CredentialsPath:  cfg.Proxy.Backends.Anthropic.CredentialsPath,
		DefaultMaxTokens: cfg.Proxy.Backends.Anthropic.DefaultMaxTokens,
	}); err == nil {
		backends["anthropic"] = client
	}

	openaiBaseURL := cfg.Client.BaseURL
	if openaiBaseURL == "" {
		openaiBaseURL = "https://api.openai.com/v1"
	}
	if client, err := openapi.New(openapi.Config{
		Name:      "openai",
		BaseURL:   openaiBaseURL,
		Auth:      config.BackendAuthConfig{Type: "api_key", KeyEnv: "OPENAI_API_KEY"},
		Discovery: true,
	}); err == nil {
		backends["openai"] = client
	}

	current := cfg.Proxy.Backends.Routing.Aliases
	resolutions := aliases.Resolve(context.Background(), backends, current, nil)

	updated := map[string]string{}
	for k, v := range current {
		updated[k] = v
	}
	changed := aliases.ApplyResolutions(updated, resolutions)

	for _, r := range resolutions {
		switch {
		case r.Error != "":
			fmt.Printf("%s: error: %s\n", r.Alias, r.Error)
		case r.Changed:
			fmt.Printf("%s: %s -> %s\n", r.Alias, r.Previous, r.Resolved)
		default:
			fmt.Printf("%s: unchanged (%s)\n", r.Alias, r.Resolved)
		}
	}

	if changed == 0 {
		return exitOK, nil
	}
	if err := config.UpdateAliases(cfgPath, updated); err != nil {
		return exitFatalInit, fmt.Errorf("persist aliases: %w", err)
	}
	fmt.Printf("updated %d alias(es)\n", changed)
	return exitOK, nil
}

// runModelStats replays the persisted metrics.jsonl into a fresh, unlogged
// Collector and prints the resulting per-backend aggregates.
func runModelStats() (int, error) {
	path := filepath.Join(config.ConfigDir(), "metrics.jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no metrics recorded yet")
			return exitOK, nil
		}
		return exitFatalInit, err
	}
	defer f.Close()

	coll, err := metrics.NewCollector(metrics.Config{Enabled: true})
	if err != nil {
		return exitFatalInit, err
	}

	dec := json.NewDecoder(f)
	for dec.More() {
		var m metrics.RequestMetric
		if err := dec.Decode(&m); err != nil {
			return exitFatalInit, fmt.Errorf("parse metrics log: %w", err)
		}
		coll.Record(m)
	}

	for backend, stats := range coll.Stats() {
		fmt.Printf("%s: requests=%d errors=%d error_rate=%.2f%% p50=%dms p95=%dms p99=%dms tokens=%d\n",
			backend, stats.Requests, stats.Errors, stats.ErrorRate*100,
			stats.LatencyP50, stats.LatencyP95, stats.LatencyP99, stats.TotalTokens)
	}
	return exitOK, nil
}

func saveAgentConfig(path string, cfg config.Config) error {
	return config.Save(path, cfg)
}
