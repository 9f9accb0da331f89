package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GeminiProvider implements the Provider interface for the Gemini
// generateContent API.
type GeminiProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg ProviderConfig, logger *zap.Logger) *GeminiProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *GeminiProvider) ID() string   { return p.config.ID }
func (p *GeminiProvider) Name() string { return p.config.Name }

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	Tools             []geminiTool      `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig `json:"toolConfig,omitempty"`
	GenerationConfig  *geminiGenConfig  `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type geminiToolConfig struct {
	FunctionCallingConfig struct {
		Mode string `json:"mode"`
	} `json:"functionCallingConfig"`
}

type geminiGenConfig struct {
	Temperature     float64  `json:"temperature,omitempty"`
	TopP            float64  `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (p *GeminiProvider) url(path string) string {
	return p.config.Endpoint + path + "?key=" + url.QueryEscape(p.config.APIKey)
}

// Chat sends a generateContent request.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, errors.New("gemini: model is required")
	}
	body, err := json.Marshal(p.convertRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.url("/models/"+req.Model+":generateContent"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return nil, errors.New("empty response from provider")
	}
	return p.convertResponse(req.Model, &gr), nil
}

func (p *GeminiProvider) convertRequest(req *ChatRequest) *geminiRequest {
	gr := &geminiRequest{}

	// tool messages only carry the call ID; Gemini wants the function name
	names := make(map[string]string)
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			c := geminiContent{Role: "model"}
			if m.Content != "" {
				c.Parts = append(c.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				names[tc.ID] = tc.Function.Name
				args := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(args) {
					args = json.RawMessage("{}")
				}
				c.Parts = append(c.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Function.Name, Args: args}})
			}
			gr.Contents = append(gr.Contents, c)
		case "tool":
			name := m.Name
			if name == "" {
				name = names[m.ToolCallID]
			}
			part := geminiPart{FunctionResponse: &geminiFunctionResponse{
				Name:     name,
				Response: map[string]any{"content": m.Content},
			}}
			if n := len(gr.Contents); n > 0 && gr.Contents[n-1].Role == "user" &&
				gr.Contents[n-1].Parts[0].FunctionResponse != nil {
				gr.Contents[n-1].Parts = append(gr.Contents[n-1].Parts, part)
				continue
			}
			gr.Contents = append(gr.Contents, geminiContent{Role: "user", Parts: []geminiPart{part}})
		default:
			gr.Contents = append(gr.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDecl{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  geminiSchema(t.Function.Parameters),
			})
		}
		gr.Tools = []geminiTool{{FunctionDeclarations: decls}}
		if req.ToolChoice != "" {
			gr.ToolConfig = &geminiToolConfig{}
			switch req.ToolChoice {
			case ToolChoiceNone:
				gr.ToolConfig.FunctionCallingConfig.Mode = "NONE"
			case "required":
				gr.ToolConfig.FunctionCallingConfig.Mode = "ANY"
			default:
				gr.ToolConfig.FunctionCallingConfig.Mode = "AUTO"
			}
		}
	}

	if req.Temperature > 0 || req.TopP > 0 || req.MaxTokens > 0 || len(req.Stop) > 0 {
		gr.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}
	return gr
}

// geminiSchema drops JSON Schema keywords the function declaration schema
// does not accept.
func geminiSchema(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			switch k {
			case "$schema", "additionalProperties", "default", "$id", "anyOf":
				continue
			}
			out[k] = geminiSchema(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = geminiSchema(vv)
		}
		return out
	}
	return v
}

func (p *GeminiProvider) convertResponse(model string, gr *geminiResponse) *ChatResponse {
	cand := gr.Candidates[0]
	var (
		content strings.Builder
		calls   []ToolCall
	)
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			content.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			id := fc.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			args := string(fc.Args)
			if args == "" || args == "null" {
				args = "{}"
			}
			calls = append(calls, ToolCall{
				ID:       id,
				Type:     "function",
				Function: ToolCallFunction{Name: fc.Name, Arguments: args},
			})
		}
	}
	if gr.ModelVersion != "" {
		model = gr.ModelVersion
	}
	return &ChatResponse{
		Model:        model,
		Content:      content.String(),
		ToolCalls:    calls,
		FinishReason: strings.ToLower(cand.FinishReason),
		Usage: Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		},
	}
}

// ListModels returns the models that support generateContent.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url("/models"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name                       string   `json:"name"`
			DisplayName                string   `json:"displayName"`
			OutputTokenLimit           int      `json:"outputTokenLimit"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	var models []Model
	for _, m := range result.Models {
		supported := len(m.SupportedGenerationMethods) == 0
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				supported = true
			}
		}
		if !supported {
			continue
		}
		models = append(models, Model{
			ID:        strings.TrimPrefix(m.Name, "models/"),
			Name:      m.DisplayName,
			Provider:  p.config.ID,
			MaxTokens: m.OutputTokenLimit,
		})
	}
	return models, nil
}

// HealthCheck verifies the provider is reachable.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	_, err := p.ListModels(ctx)
	return err
}
