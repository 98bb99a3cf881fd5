package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/chris/taskbot/config"
	"github.com/chris/taskbot/internal/domain"
	"github.com/chris/taskbot/internal/llm"
)

const (
	StrategyRules = "rules"
	StrategyModel = "model"

	// NoneSentinel is the model's answer when no tool fits.
	NoneSentinel = "NONE"
)

// Decision is the outcome of tool selection. A nil Tool means no tool.
type Decision struct {
	Tool      *domain.ToolDescriptor
	Rationale string
	Strategy  string
}

// Strategy picks at most one tool for a query.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, q domain.Query, history []domain.Turn) (Decision, error)
}

// --- Rules ---

type rule struct {
	tool     domain.ToolDescriptor
	order    int
	patterns []*regexp.Regexp
	sources  []string
}

func (r rule) match(text string) (string, bool) {
	for i, re := range r.patterns {
		if re.MatchString(text) {
			return r.sources[i], true
		}
	}
	return "", false
}

// RuleStrategy matches the question against keyword and pattern rules.
// The first matching rule wins; rules are ordered by their tool's
// registration position.
type RuleStrategy struct {
	rules []rule
}

// DefaultRules mirrors the built-in routing keywords.
func DefaultRules() []config.RuleSpec {
	return []config.RuleSpec{
		{Tool: "ProjectQuery", Keywords: []string{"project", "active"}},
		{Tool: "TaskQuery", Keywords: []string{"task", "deadline", "due", "overdue", "assigned"}},
		{Tool: "UserQuery", Keywords: []string{"working on", "who is", "team member", "teammate"}},
		{Tool: "DocumentQuery", Keywords: []string{"document", "docs", "file"}},
		{Tool: "WebSearch", Keywords: []string{"search", "look up", "google"}},
	}
}

// DefaultRulesFor returns the built-in rules whose tool is registered in reg,
// so a deployment without web search still gets the data-store rules.
func DefaultRulesFor(reg *Registry) []config.RuleSpec {
	var out []config.RuleSpec
	for _, spec := range DefaultRules() {
		if reg.Index(spec.Tool) >= 0 {
			out = append(out, spec)
		}
	}
	return out
}

// NewRuleStrategy compiles specs against the registry. Every rule must name a
// registered tool.
func NewRuleStrategy(reg *Registry, specs []config.RuleSpec) (*RuleStrategy, error) {
	rules := make([]rule, 0, len(specs))
	for _, spec := range specs {
		tool, err := reg.Get(spec.Tool)
		if err != nil {
			return nil, fmt.Errorf("rule for %s: %w", spec.Tool, err)
		}
		r := rule{tool: tool, order: reg.Index(spec.Tool)}
		for _, kw := range spec.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			r.patterns = append(r.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)))
			r.sources = append(r.sources, fmt.Sprintf("keyword %q", kw))
		}
		for _, p := range spec.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, domain.NewError("rules.compile", domain.ErrInvalidInput, fmt.Sprintf("rule for %s: %v", spec.Tool, err))
			}
			r.patterns = append(r.patterns, re)
			r.sources = append(r.sources, fmt.Sprintf("pattern %q", p))
		}
		rules = append(rules, r)
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].order < rules[j].order })
	return &RuleStrategy{rules: rules}, nil
}

func (s *RuleStrategy) Name() string { return StrategyRules }

func (s *RuleStrategy) Decide(_ context.Context, q domain.Query, _ []domain.Turn) (Decision, error) {
	for _, r := range s.rules {
		if src, ok := r.match(q.Text); ok {
			tool := r.tool
			return Decision{Tool: &tool, Rationale: "matched " + src, Strategy: StrategyRules}, nil
		}
	}
	return Decision{Rationale: "no rule matched", Strategy: StrategyRules}, nil
}

// --- Model ---

// ModelStrategy asks the language model to name one tool or NONE.
type ModelStrategy struct {
	registry     *Registry
	client       llm.Client
	logger       *slog.Logger
	historyTurns int
}

func NewModelStrategy(reg *Registry, client llm.Client, logger *slog.Logger, historyTurns int) *ModelStrategy {
	if historyTurns <= 0 {
		historyTurns = 6
	}
	return &ModelStrategy{registry: reg, client: client, logger: logger, historyTurns: historyTurns}
}

func (s *ModelStrategy) Name() string { return StrategyModel }

func (s *ModelStrategy) Decide(ctx context.Context, q domain.Query, history []domain.Turn) (Decision, error) {
	tools := s.registry.List()
	if len(history) > s.historyTurns {
		history = history[len(history)-s.historyTurns:]
	}

	reply, err := s.client.Complete(ctx, selectionPrompt(tools), turnsToMessages(history), q.Text)
	if err != nil {
		return Decision{}, err
	}

	name := normalizeChoice(reply)
	if strings.EqualFold(name, NoneSentinel) {
		return Decision{Rationale: "model chose " + NoneSentinel, Strategy: StrategyModel}, nil
	}
	for _, t := range tools {
		if strings.EqualFold(t.Name, name) {
			tool := t
			return Decision{Tool: &tool, Rationale: "model chose " + t.Name, Strategy: StrategyModel}, nil
		}
	}

	cerr := domain.NewError("strategy.model", domain.ErrClassification, fmt.Sprintf("unrecognized tool %q", reply))
	s.logger.Warn("tool selection failed", "error", cerr, "conversation", q.ConversationID)
	return Decision{Rationale: cerr.Error(), Strategy: StrategyModel}, nil
}

func selectionPrompt(tools []domain.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString("You route questions for a project assistant. Pick the single tool that best answers the user's latest question.\n\nTools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	fmt.Fprintf(&b, "\nReply with exactly one tool name from the list and nothing else. Reply %s if no tool fits.", NoneSentinel)
	return b.String()
}

// normalizeChoice trims quotes, backticks and trailing punctuation from a
// model reply and keeps its first line.
func normalizeChoice(reply string) string {
	s := strings.TrimSpace(reply)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "`\"' ")
	s = strings.TrimRight(s, ".!?,;:")
	return strings.Trim(s, "`\"' ")
}

func turnsToMessages(turns []domain.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs,
			llm.Message{Role: "user", Content: t.Query.Text},
			llm.Message{Role: "assistant", Content: t.Answer.Text},
		)
	}
	return msgs
}
