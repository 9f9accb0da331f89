package agent

import (
	"encoding/json"
)

// Kind tags an agent message.
type Kind string

const (
	KindHuman Kind = "human"
	KindAI    Kind = "ai"
	KindTool  Kind = "tool"
)

// ToolCall is a pending tool invocation requested by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Message is one entry of the agent state. ToolCalls is only set on ai
// messages; ToolCallID and Name only on tool messages.
type Message struct {
	Kind       Kind       `json:"kind"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// HumanMessage wraps a user question.
func HumanMessage(content string) Message {
	return Message{Kind: KindHuman, Content: content}
}

// ToolMessage wraps the textual result of a tool call.
func ToolMessage(call ToolCall, content string) Message {
	return Message{Kind: KindTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

// State is the append-only message log of a single question.
type State struct {
	Messages []Message `json:"messages"`
}

// Append returns a state with msg added at the end.
func (s State) Append(msg ...Message) State {
	out := make([]Message, 0, len(s.Messages)+len(msg))
	out = append(out, s.Messages...)
	out = append(out, msg...)
	return State{Messages: out}
}

// Last returns the newest message. ok is false for an empty state.
func (s State) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// ToolCallCount counts the tool invocations requested so far.
func (s State) ToolCallCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Kind == KindTool {
			n++
		}
	}
	return n
}

// Node is a state of the agent loop.
type Node string

const (
	NodeAgent    Node = "agent"
	NodeCallTool Node = "call_tool"
	NodeEnd      Node = "end"
)

// Next is the transition function of the loop. The model is asked whenever
// the newest message is a question or a tool result; tools run when the model
// asked for them; anything else ends the run.
func Next(s State) Node {
	last, ok := s.Last()
	if !ok {
		return NodeEnd
	}
	switch last.Kind {
	case KindHuman, KindTool:
		return NodeAgent
	case KindAI:
		if len(last.ToolCalls) > 0 {
			return NodeCallTool
		}
	}
	return NodeEnd
}
