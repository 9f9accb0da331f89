package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/logstore"
	"github.com/nfrm/cary-services/internal/metrics"
	"github.com/nfrm/cary-services/internal/provider"
)

// Apology is the answer returned by Chat when a run fails.
const Apology = "I'm sorry, but I encountered an error while processing your request."

const (
	DefaultMaxToolCalls = 12
	DefaultTimeout      = 60 * time.Second
)

// ErrToolBudgetExceeded is returned when the model keeps requesting tools
// after it was told to answer.
var ErrToolBudgetExceeded = errors.New("tool call budget exceeded")

const budgetNotice = "Tool call limit reached. Answer with the information gathered so far."

// Options configures an Agent. Zero values fall back to the defaults.
type Options struct {
	Collection   string
	MaxToolCalls int
	Timeout      time.Duration
	Now          func() time.Time
}

// Agent runs the admin chat loop: the model decides, requested tools run in
// order, and their results go back to the model until it answers.
type Agent struct {
	model        DecisionModel
	tools        *ToolRegistry
	collection   string
	maxToolCalls int
	timeout      time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// New creates an agent.
func New(model DecisionModel, tools *ToolRegistry, opts Options, logger *zap.Logger) *Agent {
	a := &Agent{
		model:        model,
		tools:        tools,
		collection:   opts.Collection,
		maxToolCalls: opts.MaxToolCalls,
		timeout:      opts.Timeout,
		now:          opts.Now,
		logger:       logger,
	}
	if a.collection == "" {
		a.collection = logstore.DefaultCollection
	}
	if a.maxToolCalls <= 0 {
		a.maxToolCalls = DefaultMaxToolCalls
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *ToolRegistry { return a.tools }

// Result holds the output of a run.
type Result struct {
	Answer string         `json:"answer"`
	State  State          `json:"state"`
	Chain  *ThinkingChain `json:"chain"`
}

// Run executes the loop for one question. The returned state is valid even
// when err is not nil.
func (a *Agent) Run(ctx context.Context, question string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	chain := &ThinkingChain{
		ID:        uuid.NewString(),
		Question:  question,
		StartedAt: time.Now(),
	}
	res := &Result{State: State{Messages: []Message{HumanMessage(question)}}, Chain: chain}
	defer func() { chain.Duration = time.Since(chain.StartedAt) }()

	system := SystemPrompt(a.collection, a.now())
	used := 0

	for node := Next(res.State); node != NodeEnd; node = Next(res.State) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch node {
		case NodeAgent:
			turn := Turn{
				System:     system,
				Tools:      a.tools.Definitions(),
				ToolChoice: provider.ToolChoiceAuto,
				Messages:   res.State.Messages,
			}
			exhausted := used >= a.maxToolCalls
			if exhausted {
				turn.ToolChoice = provider.ToolChoiceNone
			}
			chain.add(StepReasoning, "Asking decision model", map[string]any{"tool_choice": turn.ToolChoice})

			msg, err := a.model.Decide(ctx, turn)
			if err != nil {
				return res, fmt.Errorf("decision model: %w", err)
			}
			msg.Kind = KindAI
			if exhausted && len(msg.ToolCalls) > 0 {
				return res, ErrToolBudgetExceeded
			}
			res.State = res.State.Append(msg)

		case NodeCallTool:
			last, _ := res.State.Last()
			results := make([]Message, 0, len(last.ToolCalls))
			for _, call := range last.ToolCalls {
				if used >= a.maxToolCalls {
					results = append(results, ToolMessage(call, budgetNotice))
					continue
				}
				used++
				chain.add(StepToolCall, call.Name, string(call.Args))
				out := a.invoke(ctx, call)
				chain.add(StepToolResult, call.Name, truncateStr(out, 200))
				results = append(results, ToolMessage(call, out))
			}
			res.State = res.State.Append(results...)
			a.logger.Debug("tool round complete",
				zap.Int("tool_calls", len(last.ToolCalls)),
				zap.Int("used", used))
		}
	}

	last, _ := res.State.Last()
	res.Answer = last.Content
	chain.add(StepResponse, res.Answer, nil)
	return res, nil
}

// invoke runs one tool. Unknown tools and handler errors are reported back
// to the model as text.
func (a *Agent) invoke(ctx context.Context, call ToolCall) string {
	metrics.ToolCalls.WithLabelValues(call.Name).Inc()
	out, err := a.tools.Execute(ctx, call.Name, string(call.Args))
	if err != nil {
		a.logger.Warn("tool failed", zap.String("tool", call.Name), zap.Error(err))
		return "Error: " + err.Error()
	}
	return out
}

// Chat answers a question and never fails: any error becomes Apology.
func (a *Agent) Chat(ctx context.Context, question string) string {
	res, err := a.Run(ctx, question)
	if err != nil {
		metrics.AgentRuns.WithLabelValues("error").Inc()
		a.logger.Error("agent run failed",
			zap.Error(err),
			zap.Int("messages", len(res.State.Messages)))
		return Apology
	}
	metrics.AgentRuns.WithLabelValues("ok").Inc()
	a.logger.Info("agent run complete",
		zap.String("run_id", res.Chain.ID),
		zap.Int("tool_calls", res.State.ToolCallCount()),
		zap.Duration("duration", res.Chain.Duration))
	return res.Answer
}

// truncateStr cuts s to at most max bytes without splitting a rune.
func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
