package provider

import (
	"context"
	"errors"
)

// Generate sends a single-turn prompt through the router and returns the
// text of the reply. Nothing is kept between calls.
func Generate(ctx context.Context, r *Router, route, model, system, prompt string) (string, error) {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	resp, err := r.Route(ctx, route, &ChatRequest{Model: model, Messages: msgs})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", errors.New("empty response from provider")
	}
	return resp.Content, nil
}
