package agent

import (
	"time"
)

// StepType identifies the kind of step in a run.
type StepType string

const (
	StepReasoning  StepType = "reasoning"
	StepToolCall   StepType = "tool_call"
	StepToolResult StepType = "tool_result"
	StepResponse   StepType = "response"
)

// ThinkingChain records the trace of one agent run.
type ThinkingChain struct {
	ID        string        `json:"id"`
	Question  string        `json:"question"`
	Steps     []ThinkStep   `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ThinkStep is a single step in the thinking chain.
type ThinkStep struct {
	Type      StepType  `json:"type"`
	Content   string    `json:"content"`
	Detail    any       `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *ThinkingChain) add(t StepType, content string, detail any) {
	c.Steps = append(c.Steps, ThinkStep{Type: t, Content: content, Detail: detail, Timestamp: time.Now()})
}
