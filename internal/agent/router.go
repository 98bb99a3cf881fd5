// Package agent routes questions to at most one registered tool and records
// each exchange in the conversation.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chris/taskbot/internal/domain"
	"github.com/chris/taskbot/internal/llm"
	"github.com/chris/taskbot/internal/memory"
	"github.com/chris/taskbot/internal/tracing"
)

const (
	defaultToolTimeout   = 10 * time.Second
	defaultLLMTimeout    = 5 * time.Second
	defaultContextTokens = 4000
)

type Options struct {
	ToolTimeout time.Duration
	LLMTimeout  time.Duration
	// ContextTokens bounds the history sent with a direct answer.
	ContextTokens int
}

// Router answers one query per call. In model mode it also answers directly
// when no tool fits; in rules mode it replies with the no-match answer.
type Router struct {
	registry *Registry
	strategy Strategy
	client   llm.Client
	logger   *slog.Logger
	opts     Options
}

// NewRouter builds a router. client may be nil for the rules strategy.
func NewRouter(reg *Registry, strategy Strategy, client llm.Client, logger *slog.Logger, opts Options) *Router {
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = defaultToolTimeout
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = defaultLLMTimeout
	}
	if opts.ContextTokens <= 0 {
		opts.ContextTokens = defaultContextTokens
	}
	return &Router{registry: reg, strategy: strategy, client: client, logger: logger, opts: opts}
}

func (r *Router) Registry() *Registry { return r.registry }

func (r *Router) Strategy() string { return r.strategy.Name() }

// Handle answers q within conv. The returned Answer is always usable; err is
// non-nil whenever the Answer is a failure. The turn is appended to conv only
// when the outcome is definitive: collaborator failures and cancellation
// leave the conversation unchanged.
func (r *Router) Handle(ctx context.Context, q domain.Query, conv *memory.Conversation) (domain.Answer, error) {
	if q.Blank() {
		err := domain.NewError("router.handle", domain.ErrInvalidInput, "empty question")
		return domain.FailureAnswer(err, ""), err
	}

	ctx, span := tracing.StartSpan(ctx, "router.handle",
		attribute.String("strategy", r.strategy.Name()),
		attribute.String("conversation", conv.ID()),
		attribute.Bool("user.known", q.HasUser()),
	)
	defer span.End()

	unlock, err := conv.Lock(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return domain.FailureAnswer(err, ""), ctxErr(ctx, err)
	}
	defer unlock()

	answer, err := r.answer(ctx, q, conv)
	span.SetAttributes(
		attribute.String("tool", answer.Tool),
		attribute.Bool("success", answer.Success),
	)

	if ctx.Err() != nil {
		err = ctx.Err()
		answer = domain.FailureAnswer(err, answer.Tool)
		tracing.RecordError(span, err)
		return answer, err
	}

	if definitive(err) {
		conv.Append(domain.Turn{Query: q, Answer: answer})
	}
	if err != nil {
		tracing.RecordError(span, err)
	} else {
		tracing.SetOK(span)
	}
	return answer, err
}

// Dispatch runs the named tool on q without strategy selection, under the
// same timeout and panic isolation as a routed turn. Nothing is recorded.
func (r *Router) Dispatch(ctx context.Context, name string, q domain.Query) (domain.Answer, error) {
	if q.Blank() {
		err := domain.NewError("router.dispatch", domain.ErrInvalidInput, "empty question")
		return domain.FailureAnswer(err, name), err
	}
	tool, err := r.registry.Get(name)
	if err != nil {
		return domain.FailureAnswer(err, name), err
	}

	ctx, span := tracing.StartSpan(ctx, "router.dispatch",
		attribute.String("tool", name),
		attribute.Bool("user.known", q.HasUser()),
	)
	defer span.End()

	answer, err := r.invoke(ctx, tool, q)
	if err != nil {
		tracing.RecordError(span, err)
	} else {
		tracing.SetOK(span)
	}
	return answer, err
}

func (r *Router) answer(ctx context.Context, q domain.Query, conv *memory.Conversation) (domain.Answer, error) {
	history := conv.History(0)

	decision, err := r.decide(ctx, q, history)
	if err != nil {
		r.logger.Warn("tool selection failed", "conversation", q.ConversationID, "error", err)
		return domain.FailureAnswer(err, ""), err
	}
	r.logger.Debug("routing decision",
		"conversation", q.ConversationID,
		"strategy", decision.Strategy,
		"tool", toolName(decision),
		"rationale", decision.Rationale,
	)

	if decision.Tool != nil {
		return r.invoke(ctx, *decision.Tool, q)
	}
	if r.strategy.Name() == StrategyModel && r.client != nil {
		return r.direct(ctx, q, history)
	}
	return domain.Answer{Text: domain.NoMatchMessage, Kind: domain.KindNoMatch}, nil
}

func (r *Router) decide(ctx context.Context, q domain.Query, history []domain.Turn) (Decision, error) {
	if r.strategy.Name() != StrategyModel {
		return r.strategy.Decide(ctx, q, history)
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.LLMTimeout)
	defer cancel()
	return r.strategy.Decide(ctx, q, history)
}

type toolResult struct {
	text string
	err  error
}

// invoke runs the tool handler under the tool timeout. The handler runs in its
// own goroutine so one that ignores ctx cannot hold the turn past the deadline.
func (r *Router) invoke(ctx context.Context, tool domain.ToolDescriptor, q domain.Query) (domain.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ToolTimeout)
	defer cancel()

	done := make(chan toolResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("tool panicked", "tool", tool.Name, "panic", p)
				done <- toolResult{err: domain.NewError("tool."+tool.Name, domain.ErrToolExecution, "")}
			}
		}()
		text, err := tool.Handler(ctx, q.Text, q.UserID)
		done <- toolResult{text: text, err: err}
	}()

	var res toolResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = toolResult{err: ctx.Err()}
	}

	if res.err != nil {
		err := res.err
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = domain.NewError("tool."+tool.Name, domain.ErrTimeout, fmt.Sprintf("tool %s timed out", tool.Name))
		}
		r.logger.Info("tool failed", "tool", tool.Name, "kind", domain.KindOf(err), "error", err)
		return domain.FailureAnswer(err, tool.Name), err
	}
	if res.text == "" {
		err := domain.NewError("tool."+tool.Name, domain.ErrToolExecution, "")
		return domain.FailureAnswer(err, tool.Name), err
	}
	return domain.Success(res.text, tool.Name), nil
}

// direct asks the model to answer from the conversation alone.
func (r *Router) direct(ctx context.Context, q domain.Query, history []domain.Turn) (domain.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.LLMTimeout)
	defer cancel()

	budget := r.opts.ContextTokens - llm.EstimateTokens(llm.SystemPrompt) - llm.EstimateTokens(q.Text)
	if budget < 0 {
		budget = 0
	}
	msgs := llm.TrimMessages(turnsToMessages(history), budget)

	text, err := r.client.Complete(ctx, llm.SystemPrompt, msgs, q.Text)
	if err != nil {
		return domain.FailureAnswer(err, ""), err
	}
	if text == "" {
		err := domain.NewError("router.direct", domain.ErrService, "empty completion")
		return domain.FailureAnswer(err, ""), err
	}
	return domain.Success(text, ""), nil
}

// definitive reports whether the turn should be recorded.
func definitive(err error) bool {
	if err == nil {
		return true
	}
	switch domain.KindOf(err) {
	case domain.KindToolExecution, domain.KindMissingContext, domain.KindNotFound:
		return true
	}
	return false
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func toolName(d Decision) string {
	if d.Tool == nil {
		return ""
	}
	return d.Tool.Name
}
