package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OpenAIProvider talks to the chat completions API of OpenAI and of
// compatible gateways.
type OpenAIProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates an OpenAI provider. An empty endpoint targets
// api.openai.com.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *OpenAIProvider) ID() string   { return p.config.ID }
func (p *OpenAIProvider) Name() string { return p.config.Name }

// openAIRequest is the completions body. Our Message already has the wire
// shape, so only tool results need adjusting.
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  string    `json:"tool_choice,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// completionsURL puts the model in the path when Extra["path_model"] is
// "true", as deployment-scoped gateways expect.
func (p *OpenAIProvider) completionsURL(model string) string {
	if p.config.Extra["path_model"] == "true" && model != "" {
		return p.config.Endpoint + "/" + model + "/chat/completions"
	}
	return p.config.Endpoint + "/chat/completions"
}

func (p *OpenAIProvider) buildRequest(req *ChatRequest) *openAIRequest {
	out := &openAIRequest{
		Model:       req.Model,
		Messages:    make([]Message, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Tools:       req.Tools,
	}
	// tool_choice without tools is rejected by the API
	if len(req.Tools) > 0 {
		out.ToolChoice = req.ToolChoice
	}
	for i, m := range req.Messages {
		// tool results are matched by tool_call_id alone
		if m.Role == "tool" {
			m.Name = ""
		}
		out.Messages[i] = m
	}
	return out
}

// do sends body to url and decodes a 200 reply into dst.
func (p *OpenAIProvider) do(ctx context.Context, method, url string, body, dst any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("openai: encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("openai: status %d: %s", resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("openai: decode reply: %w", err)
	}
	return nil
}

// Chat runs one completion. Tool calls are returned as the API sends them.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var reply openAIResponse
	if err := p.do(ctx, http.MethodPost, p.completionsURL(req.Model), p.buildRequest(req), &reply); err != nil {
		return nil, err
	}
	if len(reply.Choices) == 0 {
		return nil, errors.New("openai: reply has no choices")
	}
	choice := reply.Choices[0]
	p.logger.Debug("openai completion",
		zap.String("model", reply.Model),
		zap.Int("tool_calls", len(choice.Message.ToolCalls)),
		zap.Int("total_tokens", reply.Usage.TotalTokens))
	return &ChatResponse{
		ID:           reply.ID,
		Model:        reply.Model,
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Usage:        reply.Usage,
	}, nil
}

// ListModels lists the models the key can use.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]Model, error) {
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, p.config.Endpoint+"/models", nil, &result); err != nil {
		return nil, err
	}
	models := make([]Model, len(result.Data))
	for i, m := range result.Data {
		models[i] = Model{ID: m.ID, Name: m.ID, Provider: p.config.ID}
	}
	return models, nil
}

// HealthCheck lists models as a cheap authenticated call.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.ListModels(ctx)
	return err
}
