package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var countTool = NewTool("count_api_logs", "Counts documents.", map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"filters": map[string]any{"type": "array"},
	},
})

func toolConversation() []Message {
	return []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "how many calls?"},
		{Role: "assistant", ToolCalls: []ToolCall{{
			ID: "call_1", Type: "function",
			Function: ToolCallFunction{Name: "count_api_logs", Arguments: `{"filters":[]}`},
		}}},
		{Role: "tool", ToolCallID: "call_1", Name: "count_api_logs", Content: "Found 3 matching documents."},
	}
}

func TestOpenAIChatToolCalls(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"id":"c1","model":"gpt-test","choices":[{"message":{"role":"assistant","content":"",
			"tool_calls":[{"id":"call_2","type":"function","function":{"name":"count_api_logs","arguments":"{\"filters\":[]}"}}]},
			"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL, APIKey: "sk-test"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "gpt-test", Messages: toolConversation(), Tools: []Tool{countTool}, ToolChoice: ToolChoiceAuto,
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "count_api_logs", resp.ToolCalls[0].Function.Name)
	assert.Equal(t, 5, resp.Usage.TotalTokens)

	assert.Equal(t, "auto", got["tool_choice"])
	msgs := got["messages"].([]any)
	toolMsg := msgs[3].(map[string]any)
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	_, hasName := toolMsg["name"]
	assert.False(t, hasName)
}

func TestOpenAIChatDropsToolChoiceWithoutTools(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}, ToolChoice: ToolChoiceNone,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	_, ok := got["tool_choice"]
	assert.False(t, ok)
}

func TestOpenAIListModelsAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			io.WriteString(w, `{"data":[{"id":"gpt-a"},{"id":"gpt-b"}]}`)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":"rate limited"}`)
		}
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL}, zap.NewNop())
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, Model{ID: "gpt-b", Name: "gpt-b", Provider: "oai"}, models[1])
	assert.NoError(t, p.HealthCheck(context.Background()))

	_, err = p.Chat(context.Background(), &ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAnthropicConvertRequest(t *testing.T) {
	p := NewAnthropicProvider(ProviderConfig{ID: "claude"}, zap.NewNop())
	msgs := append(toolConversation(), Message{Role: "tool", ToolCallID: "call_x", Content: "second"})
	ar := p.convertRequest(&ChatRequest{Model: "claude-test", Messages: msgs, Tools: []Tool{countTool}, ToolChoice: ToolChoiceNone})

	assert.Equal(t, "be helpful", ar.System)
	assert.Equal(t, 4096, ar.MaxTokens)
	require.Len(t, ar.Tools, 1)
	assert.Equal(t, "count_api_logs", ar.Tools[0].Name)
	require.NotNil(t, ar.ToolChoice)
	assert.Equal(t, "none", ar.ToolChoice.Type)

	require.Len(t, ar.Messages, 3)
	assert.Equal(t, "user", ar.Messages[0].Role)
	assert.Equal(t, "tool_use", ar.Messages[1].Content[0].Type)
	assert.JSONEq(t, `{"filters":[]}`, string(ar.Messages[1].Content[0].Input))
	// both tool results are folded into one user turn
	require.Len(t, ar.Messages[2].Content, 2)
	assert.Equal(t, "tool_result", ar.Messages[2].Content[0].Type)
	assert.Equal(t, "call_1", ar.Messages[2].Content[0].ToolUseID)
}

func TestAnthropicChatToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		io.WriteString(w, `{"id":"msg_1","model":"claude-test","stop_reason":"tool_use",
			"content":[{"type":"text","text":"Let me count."},{"type":"tool_use","id":"toolu_1","name":"count_api_logs","input":{"filters":[]}}],
			"usage":{"input_tokens":10,"output_tokens":4}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{ID: "claude", Endpoint: srv.URL, APIKey: "key"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{Model: "claude-test", Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "Let me count.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"filters":[]}`, resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
}

func TestGeminiChatFunctionCall(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "gk", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"count_api_logs","args":{"filters":[]}}}]},
			"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":1,"totalTokenCount":8}}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider(ProviderConfig{ID: "gemini", Endpoint: srv.URL, APIKey: "gk"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "gemini-test", Messages: toolConversation(), Tools: []Tool{countTool}, ToolChoice: ToolChoiceAuto,
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(resp.ToolCalls[0].ID, "call_"))
	assert.JSONEq(t, `{"filters":[]}`, resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "stop", resp.FinishReason)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be helpful", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "model", got.Contents[1].Role)
	require.NotNil(t, got.Contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "count_api_logs", got.Contents[2].Parts[0].FunctionResponse.Name)
	require.NotNil(t, got.ToolConfig)
	assert.Equal(t, "AUTO", got.ToolConfig.FunctionCallingConfig.Mode)

	params := got.Tools[0].FunctionDeclarations[0].Parameters.(map[string]any)
	_, ok := params["additionalProperties"]
	assert.False(t, ok)
}

type stubProvider struct {
	id    string
	reply string
	err   error
	calls int
}

func (s *stubProvider) ID() string   { return s.id }
func (s *stubProvider) Name() string { return s.id }
func (s *stubProvider) Chat(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ChatResponse{Content: s.reply + ":" + req.Messages[len(req.Messages)-1].Content}, nil
}
func (s *stubProvider) ListModels(context.Context) ([]Model, error) {
	return []Model{{ID: s.id + "-model", Provider: s.id}}, nil
}
func (s *stubProvider) HealthCheck(context.Context) error { return nil }

func TestRouterFallback(t *testing.T) {
	r := NewRouter(zap.NewNop())
	primary := &stubProvider{id: "a", err: errors.New("boom")}
	backup := &stubProvider{id: "b", reply: "backup"}
	r.Register(primary)
	r.Register(backup)
	r.SetFallbacks("agent", []string{"b"})

	resp, err := r.Route(context.Background(), "agent", &ChatRequest{Messages: []Message{{Role: "user", Content: "q"}}})
	require.NoError(t, err)
	assert.Equal(t, "backup:q", resp.Content)
	assert.Equal(t, 1, primary.calls)

	// no fallbacks configured for this route
	_, err = r.Route(context.Background(), "conversation", &ChatRequest{Messages: []Message{{Role: "user", Content: "q"}}})
	assert.Error(t, err)

	r.Bind("conversation", "b")
	out, err := Generate(context.Background(), r, "conversation", "", "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "backup:hello", out)

	assert.Len(t, r.ListModels(context.Background()), 2)
}

func TestRouterNoProvider(t *testing.T) {
	r := NewRouter(zap.NewNop())
	_, err := r.Route(context.Background(), "agent", &ChatRequest{})
	assert.ErrorIs(t, err, ErrNoProvider)
}
