package policy

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Load(filepath.Join(t.TempDir(), "policy.json"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEvaluateUnknownToolPrompts(t *testing.T) {
	s := newTestStore(t)
	if got := s.Evaluate("mystery_tool"); got != Prompt {
		t.Errorf("got %v, want Prompt", got)
	}
}

func TestResolveAlwaysPersists(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve("curl", AnswerAlways); err != nil {
		t.Fatal(err)
	}
	if got := s.Evaluate("curl"); got != Allow {
		t.Errorf("got %v, want Allow", got)
	}

	reloaded, err := Load(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Evaluate("curl"); got != Allow {
		t.Errorf("after reload: got %v, want Allow", got)
	}
}

func TestResolveNeverPersistsDeny(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve("run_terminal_cmd", AnswerNever); err != nil {
		t.Fatal(err)
	}
	if got := s.Evaluate("run_terminal_cmd"); got != Deny {
		t.Errorf("got %v, want Deny", got)
	}
}

func TestResolveYesNoAreOneShot(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve("edit_file", AnswerYes); err != nil {
		t.Fatal(err)
	}
	if got := s.Evaluate("edit_file"); got != Prompt {
		t.Errorf("one-shot yes should not persist, got %v", got)
	}
}

func TestFullAutoAllowlistOverridesPersistedMap(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve("curl", AnswerNever); err != nil {
		t.Fatal(err)
	}
	s.SetFullAutoAllowlist([]string{"curl"})
	if got := s.Evaluate("curl"); got != Allow {
		t.Errorf("allowlisted tool should be Allow even though persisted map says Deny, got %v", got)
	}
	if got := s.Evaluate("run_terminal_cmd"); got != Deny {
		t.Errorf("tool outside allowlist should be Deny, got %v", got)
	}
	s.SetFullAutoAllowlist(nil)
	if got := s.Evaluate("curl"); got != Deny {
		t.Errorf("clearing allowlist should restore persisted Deny, got %v", got)
	}
}

func TestUpdateAvailableToolsPrunesAndDefaults(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve("old_tool", AnswerAlways); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateAvailableTools([]string{"new_tool"}); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if _, ok := snap["old_tool"]; ok {
		t.Error("expected old_tool to be pruned")
	}
	if got, ok := snap["new_tool"]; !ok || got != Prompt {
		t.Errorf("expected new_tool to default to Prompt, got %v ok=%v", got, ok)
	}
}

func TestCommandsConfigAllowed(t *testing.T) {
	c := CommandsConfig{Allow: []string{"git", "go"}, Deny: []string{"rm"}}
	if !c.Allowed("git status") {
		t.Error("expected git status to be allowed")
	}
	if c.Allowed("rm -rf /") {
		t.Error("expected rm to be denied")
	}
	if c.Allowed("curl https://example.com") {
		t.Error("expected curl to be denied (not in allow list)")
	}
}

func TestCommandsConfigEmptyAllowMeansUnrestricted(t *testing.T) {
	c := CommandsConfig{Deny: []string{"rm"}}
	if !c.Allowed("ls -la") {
		t.Error("expected ls to be allowed when allow list is empty")
	}
	if c.Allowed("rm file") {
		t.Error("expected rm to still be denied")
	}
}

func TestDecisionJSONRoundTrip(t *testing.T) {
	s := newTestStore(t)
	for _, d := range []Decision{Allow, Deny, Prompt} {
		tool := "tool_" + d.String()
		if d == Allow {
			s.Resolve(tool, AnswerAlways)
		} else if d == Deny {
			s.Resolve(tool, AnswerNever)
		}
	}
	reloaded, err := Load(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Evaluate("tool_allow"); got != Allow {
		t.Errorf("got %v, want Allow", got)
	}
	if got := reloaded.Evaluate("tool_deny"); got != Deny {
		t.Errorf("got %v, want Deny", got)
	}
}
