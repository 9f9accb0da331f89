package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/provider"
)

// scriptedModel replies with the next scripted message on every turn.
type scriptedModel struct {
	replies []Message
	err     error
	turns   []Turn
}

func (m *scriptedModel) Decide(_ context.Context, turn Turn) (Message, error) {
	m.turns = append(m.turns, turn)
	if m.err != nil {
		return Message{}, m.err
	}
	if len(m.replies) == 0 {
		return Message{Kind: KindAI, Content: "done"}, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type recordedCall struct {
	name string
	args string
}

func newRegistry(calls *[]recordedCall) *ToolRegistry {
	reg := NewToolRegistry()
	for _, name := range []string{"count_api_logs", "query_api_logs"} {
		name := name
		reg.Register(provider.NewTool(name, "test tool", map[string]any{"type": "object"}),
			func(_ context.Context, args string) (string, error) {
				*calls = append(*calls, recordedCall{name: name, args: args})
				return "Found 1 matching documents.", nil
			})
	}
	return reg
}

func fixedNow() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }

func TestNext(t *testing.T) {
	assert.Equal(t, NodeEnd, Next(State{}))
	s := State{Messages: []Message{HumanMessage("hi")}}
	assert.Equal(t, NodeAgent, Next(s))
	call := ToolCall{ID: "1", Name: "count_api_logs", Args: json.RawMessage(`{}`)}
	s = s.Append(Message{Kind: KindAI, ToolCalls: []ToolCall{call}})
	assert.Equal(t, NodeCallTool, Next(s))
	s = s.Append(ToolMessage(call, "Found 1 matching documents."))
	assert.Equal(t, NodeAgent, Next(s))
	s = s.Append(Message{Kind: KindAI, Content: "one"})
	assert.Equal(t, NodeEnd, Next(s))
}

func TestRunTerminatesWithoutTools(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{replies: []Message{{Kind: KindAI, Content: "Hello there!"}}}
	a := New(model, newRegistry(&calls), Options{Now: fixedNow}, zap.NewNop())

	answer := a.Chat(context.Background(), "What's up?")
	assert.Equal(t, "Hello there!", answer)
	assert.Len(t, model.turns, 1)
	assert.Empty(t, calls)
}

func TestRunDispatchesToolOnce(t *testing.T) {
	var calls []recordedCall
	filters := `{"filters":[{"field":"api_name","op":"==","value":"x"}]}`
	model := &scriptedModel{replies: []Message{
		{Kind: KindAI, ToolCalls: []ToolCall{{ID: "c1", Name: "count_api_logs", Args: json.RawMessage(filters)}}},
		{Kind: KindAI, Content: "There is 1 call to x."},
	}}
	a := New(model, newRegistry(&calls), Options{Now: fixedNow}, zap.NewNop())

	res, err := a.Run(context.Background(), "How many calls to x?")
	require.NoError(t, err)
	assert.Equal(t, "There is 1 call to x.", res.Answer)

	require.Len(t, calls, 1)
	assert.Equal(t, "count_api_logs", calls[0].name)
	assert.JSONEq(t, filters, calls[0].args)

	require.Len(t, res.State.Messages, 4)
	assert.Equal(t, KindHuman, res.State.Messages[0].Kind)
	assert.Equal(t, KindAI, res.State.Messages[1].Kind)
	assert.Equal(t, KindTool, res.State.Messages[2].Kind)
	assert.Equal(t, "c1", res.State.Messages[2].ToolCallID)
	assert.Equal(t, "Found 1 matching documents.", res.State.Messages[2].Content)

	// the second turn sees the tool result
	require.Len(t, model.turns, 2)
	assert.Len(t, model.turns[1].Messages, 3)
	assert.Contains(t, model.turns[0].System, "2025-06-01T09:30:00Z")
	assert.Equal(t, provider.ToolChoiceAuto, model.turns[0].ToolChoice)
}

func TestRunExecutesToolsInOrder(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{replies: []Message{
		{Kind: KindAI, ToolCalls: []ToolCall{
			{ID: "a", Name: "query_api_logs", Args: json.RawMessage(`{"filters":[]}`)},
			{ID: "b", Name: "count_api_logs", Args: json.RawMessage(`{"filters":[]}`)},
			{ID: "c", Name: "no_such_tool", Args: json.RawMessage(`{}`)},
		}},
	}}
	a := New(model, newRegistry(&calls), Options{}, zap.NewNop())

	res, err := a.Run(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "query_api_logs", calls[0].name)
	assert.Equal(t, "count_api_logs", calls[1].name)

	tool := res.State.Messages[4]
	assert.Equal(t, "c", tool.ToolCallID)
	assert.True(t, strings.HasPrefix(tool.Content, "Error: unknown tool"))
	assert.Equal(t, "done", res.Answer)
}

func TestRunToolBudget(t *testing.T) {
	var calls []recordedCall
	loop := Message{Kind: KindAI, ToolCalls: []ToolCall{{ID: "x", Name: "count_api_logs", Args: json.RawMessage(`{"filters":[]}`)}}}
	model := &scriptedModel{replies: []Message{loop, loop, {Kind: KindAI, Content: "best effort"}}}
	a := New(model, newRegistry(&calls), Options{MaxToolCalls: 2}, zap.NewNop())

	res, err := a.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, calls, 2)
	assert.Equal(t, "best effort", res.Answer)
	// third turn is made with tools disabled; the model answered instead of looping
	assert.Equal(t, provider.ToolChoiceNone, model.turns[2].ToolChoice)
	assert.Equal(t, provider.ToolChoiceAuto, model.turns[1].ToolChoice)
}

func TestRunToolBudgetExceeded(t *testing.T) {
	var calls []recordedCall
	loop := Message{Kind: KindAI, ToolCalls: []ToolCall{{ID: "x", Name: "count_api_logs", Args: json.RawMessage(`{}`)}}}
	model := &scriptedModel{replies: []Message{loop, loop, loop, loop}}
	a := New(model, newRegistry(&calls), Options{MaxToolCalls: 1}, zap.NewNop())

	_, err := a.Run(context.Background(), "q")
	assert.ErrorIs(t, err, ErrToolBudgetExceeded)
	assert.Equal(t, Apology, New(&scriptedModel{replies: []Message{loop, loop}}, newRegistry(&calls),
		Options{MaxToolCalls: 1}, zap.NewNop()).Chat(context.Background(), "q"))
}

func TestChatApologizesOnModelError(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{err: errors.New("quota exceeded")}
	a := New(model, newRegistry(&calls), Options{}, zap.NewNop())
	assert.Equal(t, Apology, a.Chat(context.Background(), "How many calls?"))
}

func TestRouterModelConversion(t *testing.T) {
	msgs := toProviderMessages("sys", []Message{
		HumanMessage("q"),
		{Kind: KindAI, ToolCalls: []ToolCall{{ID: "1", Name: "count_api_logs", Args: json.RawMessage(`{"filters":[]}`)}}},
		ToolMessage(ToolCall{ID: "1", Name: "count_api_logs"}, "Found 2 matching documents."),
	})
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, `{"filters":[]}`, msgs[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", msgs[3].Role)
	assert.Equal(t, "count_api_logs", msgs[3].Name)

	tc := fromProviderCall(provider.ToolCall{Function: provider.ToolCallFunction{Name: "count_api_logs", Arguments: "{not json"}})
	assert.NotEmpty(t, tc.ID)
	assert.True(t, json.Valid(tc.Args))
}

func TestTruncateStrKeepsRunes(t *testing.T) {
	assert.Equal(t, "short", truncateStr("short", 10))
	assert.Equal(t, "abc...", truncateStr("abcdef", 3))

	// "€" is three bytes; a cut inside it backs off to the rune start
	out := truncateStr("a€b", 2)
	assert.Equal(t, "a...", out)
	assert.True(t, utf8.ValidString(out))
	for i := 0; i <= len("Frais: 12€ / mois"); i++ {
		assert.True(t, utf8.ValidString(truncateStr("Frais: 12€ / mois", i)), i)
	}
}
