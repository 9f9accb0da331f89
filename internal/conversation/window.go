package conversation

import "go.uber.org/zap"

// Context window sizing for replayed histories.
const (
	DefaultMaxTokens    = 128000
	DefaultReserveRatio = 0.3
)

// historyBudget returns the tokens available to the replayed history once
// the response reserve is set aside.
func historyBudget(maxTokens int, reserve float64) int {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if reserve <= 0 || reserve >= 1 {
		reserve = DefaultReserveRatio
	}
	return int(float64(maxTokens) * (1 - reserve))
}

// fitHistory drops the oldest turns until the history fits in budget tokens.
// The newest turn is always kept.
func fitHistory(history []Turn, budget int) []Turn {
	total := 0
	for _, t := range history {
		total += estimateTokens(t.Content)
	}
	start := 0
	for total > budget && start < len(history)-1 {
		total -= estimateTokens(history[start].Content)
		start++
	}
	return history[start:]
}

func (s *Service) fit(history []Turn) []Turn {
	fitted := fitHistory(history, s.budget)
	if dropped := len(history) - len(fitted); dropped > 0 {
		s.logger.Info("history exceeds budget, dropping oldest turns",
			zap.Int("dropped", dropped),
			zap.Int("budget", s.budget))
	}
	return fitted
}

// estimateTokens is a rough heuristic of ~4 chars per token.
func estimateTokens(s string) int {
	n := len(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
