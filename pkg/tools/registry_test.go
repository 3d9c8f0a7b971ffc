package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegistryExecuteUnknownTool(t *testing.T) {
	ws := newTestWorkspace(t)
	reg, err := NewRegistry(ws)
	if err != nil {
		t.Fatal(err)
	}
	_, err = reg.Execute(context.Background(), "does_not_exist", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected ErrUnknownTool")
	}
}

func TestRegistryExecuteValidatesArguments(t *testing.T) {
	ws := newTestWorkspace(t)
	reg, err := NewRegistry(ws)
	if err != nil {
		t.Fatal(err)
	}
	// edit_file requires path, old_string, new_string.
	_, err = reg.Execute(context.Background(), "edit_file", json.RawMessage(`{"path":"a.txt"}`))
	if err == nil {
		t.Fatal("expected schema validation error for missing required fields")
	}
}

func TestRegistryExecuteRoundTrip(t *testing.T) {
	ws := newTestWorkspace(t)
	reg, err := NewRegistry(ws)
	if err != nil {
		t.Fatal(err)
	}
	args, _ := json.Marshal(writeFileArgs{Path: "hello.txt", Content: "hi"})
	if _, err := reg.Execute(context.Background(), "write_file", args); err != nil {
		t.Fatal(err)
	}

	readArgs, _ := json.Marshal(readFileArgs{Path: "hello.txt"})
	res, err := reg.Execute(context.Background(), "read_file", readArgs)
	if err != nil {
		t.Fatal(err)
	}
	if res.(map[string]any)["content"] != "hi" {
		t.Errorf("unexpected result: %#v", res)
	}
}

func TestFunctionDeclarationsFiltersByCapability(t *testing.T) {
	ws := newTestWorkspace(t)
	reg, err := NewRegistry(ws)
	if err != nil {
		t.Fatal(err)
	}
	basicOnly := reg.FunctionDeclarations(CapabilityBasic)
	for _, d := range basicOnly {
		if d.Capability > CapabilityBasic {
			t.Errorf("tool %q with capability %v leaked into basic-level declarations", d.Name, d.Capability)
		}
	}
	all := reg.FunctionDeclarations(CapabilityCodeSearch)
	if len(all) <= len(basicOnly) {
		t.Errorf("expected more declarations at the highest capability level: basic=%d all=%d", len(basicOnly), len(all))
	}
}

func TestApplyConfigPoliciesDisablesTools(t *testing.T) {
	ws := newTestWorkspace(t)
	reg, err := NewRegistry(ws)
	if err != nil {
		t.Fatal(err)
	}
	reg.ApplyConfigPolicies([]string{"run_terminal_cmd"})

	for _, n := range reg.AvailableTools() {
		if n == "run_terminal_cmd" {
			t.Fatal("expected run_terminal_cmd to be removed from AvailableTools")
		}
	}
	for _, d := range reg.FunctionDeclarations(CapabilityCodeSearch) {
		if d.Name == "run_terminal_cmd" {
			t.Fatal("expected run_terminal_cmd to be removed from FunctionDeclarations")
		}
	}
	if _, err := reg.Execute(context.Background(), "run_terminal_cmd", json.RawMessage(`{"command":"ls"}`)); err == nil {
		t.Fatal("expected disabled tool to be unexecutable")
	}
}

func TestAvailableToolsIncludesBuiltins(t *testing.T) {
	ws := newTestWorkspace(t)
	reg, err := NewRegistry(ws)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, n := range reg.AvailableTools() {
		names[n] = true
	}
	for _, want := range []string{"read_file", "write_file", "grep_search", "curl", "apply_patch", "run_terminal_cmd"} {
		if !names[want] {
			t.Errorf("expected %q to be registered", want)
		}
	}
}
