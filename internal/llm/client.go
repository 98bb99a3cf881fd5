package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/chris/taskbot/internal/domain"
)

type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Client completes a prompt given a system prompt and prior conversation.
// Errors wrap domain.ErrService, domain.ErrRateLimit or domain.ErrTimeout.
type Client interface {
	Complete(ctx context.Context, systemPrompt string, history []Message, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, systemPrompt string, history []Message, prompt string) (string, error)

func (f ClientFunc) Complete(ctx context.Context, systemPrompt string, history []Message, prompt string) (string, error) {
	return f(ctx, systemPrompt, history, prompt)
}

// classify wraps a provider failure in the matching category sentinel.
func classify(op string, status int, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewError(op, domain.ErrTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return err
	case status == 429:
		return domain.NewError(op, domain.ErrRateLimit, err.Error())
	default:
		return domain.NewError(op, domain.ErrService, err.Error())
	}
}

func statusError(status string, body []byte) error {
	const max = 300
	if len(body) > max {
		body = body[:max]
	}
	return fmt.Errorf("%s %s", status, string(body))
}
