package agentloop

import (
	"godex-agent/pkg/convo"
	"godex-agent/pkg/harness"
	"godex-agent/pkg/tools"
)

// toHarnessMessages converts history to the provider-facing wire type.
// The field sets are deliberately identical (Role, Content, Name, ToolID)
// so this is a 1:1 copy, not a translation.
func toHarnessMessages(history []convo.Message) []harness.Message {
	out := make([]harness.Message, len(history))
	for i, m := range history {
		out[i] = harness.Message{Role: m.Role, Content: m.Content, Name: m.Name, ToolID: m.ToolID}
	}
	return out
}

func toHarnessTools(defs []tools.Definition) []harness.ToolSpec {
	out := make([]harness.ToolSpec, len(defs))
	for i, d := range defs {
		out[i] = harness.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}
