package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nfrm/cary-services/internal/provider"
)

// Turn is one request to the decision model.
type Turn struct {
	System     string
	Tools      []provider.Tool
	ToolChoice string // provider.ToolChoiceAuto or provider.ToolChoiceNone
	Messages   []Message
}

// DecisionModel chooses, per turn, between calling tools and answering.
type DecisionModel interface {
	Decide(ctx context.Context, turn Turn) (Message, error)
}

// RouterModel is a DecisionModel backed by the provider router.
type RouterModel struct {
	router    *provider.Router
	route     string
	model     string
	maxTokens int
}

// NewRouterModel creates a decision model that sends every turn through
// router on the given route.
func NewRouterModel(router *provider.Router, route, model string) *RouterModel {
	return &RouterModel{router: router, route: route, model: model, maxTokens: 4096}
}

// Decide converts the turn into a chat request and the reply into an ai message.
func (m *RouterModel) Decide(ctx context.Context, turn Turn) (Message, error) {
	req := &provider.ChatRequest{
		Model:     m.model,
		Messages:  toProviderMessages(turn.System, turn.Messages),
		MaxTokens: m.maxTokens,
	}
	if len(turn.Tools) > 0 {
		req.Tools = turn.Tools
		req.ToolChoice = turn.ToolChoice
		if req.ToolChoice == "" {
			req.ToolChoice = provider.ToolChoiceAuto
		}
	}

	resp, err := m.router.Route(ctx, m.route, req)
	if err != nil {
		return Message{}, err
	}

	out := Message{Kind: KindAI, Content: resp.Content}
	for _, tc := range resp.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, fromProviderCall(tc))
	}
	return out, nil
}

func toProviderMessages(system string, msgs []Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, provider.Message{Role: "system", Content: system})
	}
	for _, m := range msgs {
		switch m.Kind {
		case KindHuman:
			out = append(out, provider.Message{Role: "user", Content: m.Content})
		case KindAI:
			pm := provider.Message{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				pm.ToolCalls = append(pm.ToolCalls, provider.ToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: provider.ToolCallFunction{Name: tc.Name, Arguments: string(tc.Args)},
				})
			}
			out = append(out, pm)
		case KindTool:
			out = append(out, provider.Message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
			})
		}
	}
	return out
}

func fromProviderCall(tc provider.ToolCall) ToolCall {
	id := tc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args := json.RawMessage(tc.Function.Arguments)
	switch {
	case len(args) == 0:
		args = json.RawMessage("{}")
	case !json.Valid(args):
		// keep the raw text so the tool can report it back to the model
		quoted, _ := json.Marshal(tc.Function.Arguments)
		args = json.RawMessage(quoted)
	}
	return ToolCall{ID: id, Name: tc.Function.Name, Args: args}
}

// String renders a call for logs.
func (c ToolCall) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, string(c.Args))
}
