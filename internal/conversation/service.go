// Package conversation builds the persona prompts for the finance endpoints.
// Every call is stateless: the caller sends the full history and the whole
// conversation is replayed into a single prompt.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/provider"
)

// Kind selects a popular questions list.
type Kind string

const (
	Personal Kind = "Personal"
	Business Kind = "Business"
)

// Turn is one prior message of a client-held conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces text for a single self-contained prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RouterGenerator sends prompts through the provider router.
type RouterGenerator struct {
	Router *provider.Router
	Route  string
	Model  string
}

// Generate implements Generator.
func (g RouterGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return provider.Generate(ctx, g.Router, g.Route, g.Model, "", prompt)
}

// Service answers the finance endpoints.
type Service struct {
	gen    Generator
	budget int
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithContextWindow sizes the history budget for a model with maxTokens of
// context, keeping reserve (0..1) of it free for the response.
func WithContextWindow(maxTokens int, reserve float64) Option {
	return func(s *Service) { s.budget = historyBudget(maxTokens, reserve) }
}

// NewService creates a conversation service.
func NewService(gen Generator, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{gen: gen, budget: historyBudget(0, 0), logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Generate passes prompt straight to the model.
func (s *Service) Generate(ctx context.Context, prompt string) string {
	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("generate failed", zap.Error(err))
		return fmt.Sprintf("Error generating AI response: %v", err)
	}
	return out
}

// FinancialAdvice answers a finance question as the advisor persona.
func (s *Service) FinancialAdvice(ctx context.Context, question string, history []Turn) string {
	prompt := buildPrompt(financialAdvisorPersona, s.fit(history),
		fmt.Sprintf("User's question: %q\n\nYour financial advice:", question))
	return s.run(ctx, "financial advice generation", prompt)
}

// DocumentReview answers a question about document as the analyst persona.
func (s *Service) DocumentReview(ctx context.Context, document, question string, history []Turn) string {
	persona := documentReviewerPersona + "\n\n**User's Document:**\n---\n" + document + "\n---"
	prompt := buildPrompt(persona, s.fit(history),
		fmt.Sprintf("User's question about the document: %q\n\nYour analysis and response:", question))
	return s.run(ctx, "document review", prompt)
}

// BudgetPlan continues the budget planning interview.
func (s *Service) BudgetPlan(ctx context.Context, history []Turn, userMessage string) string {
	lines := []string{budgetPlannerPersona}
	for _, t := range s.fit(history) {
		lines = append(lines, formatTurn(t))
	}
	lines = append(lines, "User: "+userMessage, "\nAssistant:")
	return s.run(ctx, "budget plan generation", strings.Join(lines, "\n"))
}

func (s *Service) run(ctx context.Context, what, prompt string) string {
	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("conversation failed", zap.String("service", what), zap.Error(err))
		return fmt.Sprintf("An error occurred during %s: %v", what, err)
	}
	return out
}

// PopularQuestions returns up to count questions of the given kind. Unknown
// kinds yield an empty list.
func PopularQuestions(kind Kind, count int) []string {
	var src []string
	switch kind {
	case Personal:
		src = personalQuestions
	case Business:
		src = businessQuestions
	}
	if count < 0 {
		count = 0
	}
	if count > len(src) {
		count = len(src)
	}
	out := make([]string, count)
	copy(out, src[:count])
	return out
}

func buildPrompt(persona string, history []Turn, ask string) string {
	var b strings.Builder
	b.WriteString(persona)
	if len(history) > 0 {
		b.WriteString("\n\n**Conversation so far:**\n")
		for _, t := range history {
			b.WriteString(formatTurn(t))
			b.WriteByte('\n')
		}
	}
	b.WriteString("\n\n")
	b.WriteString(ask)
	return b.String()
}

func formatTurn(t Turn) string {
	role := t.Role
	if role == "" {
		role = "user"
	}
	return capitalize(role) + ": " + t.Content
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
