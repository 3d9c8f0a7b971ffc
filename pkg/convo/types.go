// Package convo holds the conversation and bookkeeping types shared between
// the run loop and the context trimmer, kept in their own leaf package so
// neither has to import the other.
//
// Message mirrors harness.Message's flat shape exactly (one message per
// tool call, the teacher's own convention in pkg/harness/claude's request
// builder: an assistant tool-call becomes {Role: "assistant", ToolID,
// Name, Content: argsJSON}, answered by {Role: "tool", ToolID, Content:
// result}) so the run loop can convert between the two with a 1:1 field
// copy instead of a lossy translation.
package convo

// Message is one entry in a session's conversation history.
type Message struct {
	Role    string // "system", "user", "assistant", "tool"
	Content string
	Name    string // tool name, set on an assistant tool-call message
	ToolID  string // set on an assistant tool-call message and its answering tool message
}

// DecisionRecord is one entry in the decision ledger: a record of a
// consequential thing the run loop did, independent of the raw provider
// event stream. Grounded on pkg/proxy's audit-entry shape, stripped of its
// HTTP-specific fields.
type DecisionRecord struct {
	Turn    int
	Kind    string // "tool_call", "response", "error"
	Summary string
	Outcome string
}

// SessionSummary carries the data shown in the session's welcome/status
// banner and returned by run_session on clean exit.
type SessionSummary struct {
	Workspace    string
	Model        string
	TrustLevel   string
	ToolsEnabled int
	TurnsTaken   int
	Reason       string // "user_exit", "max_turns", "max_duration"
}
