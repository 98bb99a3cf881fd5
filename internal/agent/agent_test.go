package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/taskbot/config"
	"github.com/chris/taskbot/internal/domain"
	"github.com/chris/taskbot/internal/llm"
	"github.com/chris/taskbot/internal/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoTool(name string) domain.ToolDescriptor {
	return domain.ToolDescriptor{
		Name:        name,
		Description: name + " answers questions",
		Handler: func(_ context.Context, text string, _ int64) (string, error) {
			return name + ": " + text, nil
		},
	}
}

// testRegistry registers the five tools in production order.
func testRegistry(t *testing.T, overrides ...domain.ToolDescriptor) *Registry {
	t.Helper()
	byName := map[string]domain.ToolDescriptor{}
	for _, o := range overrides {
		byName[o.Name] = o
	}
	reg := NewRegistry()
	for _, name := range []string{"ProjectQuery", "TaskQuery", "UserQuery", "DocumentQuery", "WebSearch"} {
		tool, ok := byName[name]
		if !ok {
			tool = echoTool(name)
		}
		require.NoError(t, reg.Register(tool))
	}
	return reg
}

func rulesRouter(t *testing.T, reg *Registry, opts Options) *Router {
	t.Helper()
	strategy, err := NewRuleStrategy(reg, DefaultRules())
	require.NoError(t, err)
	return NewRouter(reg, strategy, nil, quietLogger(), opts)
}

// --- Registry ---

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := testRegistry(t)
	var names []string
	for _, d := range reg.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"ProjectQuery", "TaskQuery", "UserQuery", "DocumentQuery", "WebSearch"}, names)
	assert.Equal(t, 2, reg.Index("UserQuery"))
	assert.Equal(t, -1, reg.Index("Nope"))
	assert.Equal(t, 5, reg.Len())
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("ProjectQuery")))

	err := reg.Register(echoTool("ProjectQuery"))
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	err = reg.Register(domain.ToolDescriptor{Name: "", Handler: echoTool("x").Handler})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = reg.Register(domain.ToolDescriptor{Name: "NoHandler"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, 1, reg.Len())
	assert.Panics(t, func() { reg.MustRegister(echoTool("ProjectQuery")) })
}

func TestRegistryGet(t *testing.T) {
	reg := testRegistry(t)
	d, err := reg.Get("TaskQuery")
	require.NoError(t, err)
	assert.Equal(t, "TaskQuery", d.Name)

	_, err = reg.Get("Missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- Rule strategy ---

func TestRuleStrategyRouting(t *testing.T) {
	reg := testRegistry(t)
	s, err := NewRuleStrategy(reg, DefaultRules())
	require.NoError(t, err)

	tests := []struct {
		text string
		want string
	}{
		{"What projects are active?", "ProjectQuery"},
		{"What is Jagasri working on?", "UserQuery"},
		{"what are my tasks", "TaskQuery"},
		{"Any upcoming deadlines?", "TaskQuery"},
		{"Who is working on project Apollo?", "ProjectQuery"},
		{"show me the documents for Apollo", "DocumentQuery"},
		{"search for kanban tips", "WebSearch"},
		// Matches ProjectQuery ("active") and TaskQuery ("task", "due");
		// the tool registered first wins.
		{"what tasks are due in active projects", "ProjectQuery"},
		{"hello there", ""},
		{"I'm inactive today", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, err := s.Decide(context.Background(), domain.NewQuery(tt.text, 0, "c"), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, toolName(d))
			assert.Equal(t, StrategyRules, d.Strategy)
			assert.NotEmpty(t, d.Rationale)
		})
	}
}

func TestRuleStrategyOrdersByRegistration(t *testing.T) {
	reg := testRegistry(t)
	// Listed out of order on purpose.
	s, err := NewRuleStrategy(reg, []config.RuleSpec{
		{Tool: "TaskQuery", Keywords: []string{"status"}},
		{Tool: "ProjectQuery", Patterns: []string{`status of project \w+`}},
	})
	require.NoError(t, err)

	d, err := s.Decide(context.Background(), domain.NewQuery("what is the status of project Apollo", 0, "c"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ProjectQuery", toolName(d))

	d, err = s.Decide(context.Background(), domain.NewQuery("status of the login task", 0, "c"), nil)
	require.NoError(t, err)
	assert.Equal(t, "TaskQuery", toolName(d))
}

func TestRuleStrategyIsDeterministic(t *testing.T) {
	reg := testRegistry(t)
	s, err := NewRuleStrategy(reg, DefaultRules())
	require.NoError(t, err)
	q := domain.NewQuery("what tasks are due in active projects", 0, "c")
	first, _ := s.Decide(context.Background(), q, nil)
	for i := 0; i < 10; i++ {
		d, _ := s.Decide(context.Background(), q, nil)
		assert.Equal(t, toolName(first), toolName(d))
	}
}

func TestRuleStrategyRejectsBadRules(t *testing.T) {
	reg := testRegistry(t)

	_, err := NewRuleStrategy(reg, []config.RuleSpec{{Tool: "Weather", Keywords: []string{"rain"}}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = NewRuleStrategy(reg, []config.RuleSpec{{Tool: "TaskQuery", Patterns: []string{"("}}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDefaultRulesForSkipsUnregisteredTools(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"ProjectQuery", "TaskQuery", "UserQuery", "DocumentQuery"} {
		require.NoError(t, reg.Register(echoTool(name)))
	}

	rules := DefaultRulesFor(reg)
	require.Len(t, rules, 4)
	for _, r := range rules {
		assert.NotEqual(t, "WebSearch", r.Tool)
	}

	s, err := NewRuleStrategy(reg, rules)
	require.NoError(t, err)
	d, err := s.Decide(context.Background(), domain.NewQuery("search for golang", 0, "c"), nil)
	require.NoError(t, err)
	assert.Nil(t, d.Tool)

	assert.Len(t, DefaultRulesFor(testRegistry(t)), 5)
}

// --- Model strategy ---

// scriptedClient answers tool selection prompts with choice and everything
// else with reply.
type scriptedClient struct {
	mu      sync.Mutex
	choice  string
	reply   string
	err     error
	calls   int
	history [][]llm.Message
}

func (c *scriptedClient) Complete(_ context.Context, system string, history []llm.Message, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.history = append(c.history, history)
	if c.err != nil {
		return "", c.err
	}
	if strings.HasPrefix(system, "You route questions") {
		return c.choice, nil
	}
	return c.reply, nil
}

func TestNormalizeChoice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TaskQuery", "TaskQuery"},
		{"  `TaskQuery`  ", "TaskQuery"},
		{`"UserQuery".`, "UserQuery"},
		{"NONE\nbecause nothing fits", "NONE"},
		{"'ProjectQuery'!", "ProjectQuery"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeChoice(tt.in), "normalizeChoice(%q)", tt.in)
	}
}

func TestModelStrategyDecisions(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		choice string
		want   string
	}{
		{"taskquery", "TaskQuery"},
		{"`DocumentQuery`.", "DocumentQuery"},
		{"NONE", ""},
		{"none", ""},
		{"I think the weather tool", ""},
	}
	for _, tt := range tests {
		t.Run(tt.choice, func(t *testing.T) {
			s := NewModelStrategy(reg, &scriptedClient{choice: tt.choice}, quietLogger(), 0)
			d, err := s.Decide(context.Background(), domain.NewQuery("anything", 0, "c"), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, toolName(d))
			assert.Equal(t, StrategyModel, d.Strategy)
		})
	}
}

func TestModelStrategyPassesRecentHistory(t *testing.T) {
	reg := testRegistry(t)
	client := &scriptedClient{choice: "TaskQuery"}
	s := NewModelStrategy(reg, client, quietLogger(), 2)

	var history []domain.Turn
	for i := 0; i < 5; i++ {
		history = append(history, domain.Turn{
			Query:  domain.NewQuery(fmt.Sprintf("q%d", i), 0, "c"),
			Answer: domain.Success(fmt.Sprintf("a%d", i), ""),
		})
	}
	_, err := s.Decide(context.Background(), domain.NewQuery("next", 0, "c"), history)
	require.NoError(t, err)

	require.Len(t, client.history, 1)
	got := client.history[0]
	require.Len(t, got, 4)
	assert.Equal(t, "q3", got[0].Content)
	assert.Equal(t, "a4", got[3].Content)
}

func TestSelectionPromptListsTools(t *testing.T) {
	p := selectionPrompt(testRegistry(t).List())
	assert.Contains(t, p, "- UserQuery: UserQuery answers questions")
	assert.Contains(t, p, NoneSentinel)
}

// --- Router ---

func TestRouterRejectsEmptyQuery(t *testing.T) {
	r := rulesRouter(t, testRegistry(t), Options{})
	conv := memory.NewConversation("c", 0)

	for _, text := range []string{"", "   ", "\n\t"} {
		a, err := r.Handle(context.Background(), domain.NewQuery(text, 1, "c"), conv)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.False(t, a.Success)
		assert.Equal(t, domain.KindInvalidInput, a.Kind)
	}
	assert.Equal(t, 0, conv.Len())
}

func TestRouterToolAnswerIsRecorded(t *testing.T) {
	r := rulesRouter(t, testRegistry(t), Options{})
	conv := memory.NewConversation("c", 0)

	a, err := r.Handle(context.Background(), domain.NewQuery("What projects are active?", 1, "c"), conv)
	require.NoError(t, err)
	assert.True(t, a.Success)
	assert.Equal(t, "ProjectQuery", a.Tool)
	assert.Equal(t, "ProjectQuery: What projects are active?", a.Text)

	h := conv.History(0)
	require.Len(t, h, 1)
	assert.Equal(t, "What projects are active?", h[0].Query.Text)
	assert.Equal(t, a, h[0].Answer)
}

func TestRouterNoMatch(t *testing.T) {
	r := rulesRouter(t, testRegistry(t), Options{})
	conv := memory.NewConversation("c", 0)

	a, err := r.Handle(context.Background(), domain.NewQuery("tell me a joke", 1, "c"), conv)
	require.NoError(t, err)
	assert.False(t, a.Success)
	assert.Equal(t, domain.KindNoMatch, a.Kind)
	assert.Equal(t, domain.NoMatchMessage, a.Text)
	assert.Equal(t, 1, conv.Len())
}

func TestRouterPassesUserToTool(t *testing.T) {
	var gotUser int64
	tasks := domain.ToolDescriptor{
		Name:        "TaskQuery",
		Description: "tasks",
		Handler: func(_ context.Context, _ string, userID int64) (string, error) {
			gotUser = userID
			if userID == 0 {
				return "", domain.NewError("tools.tasks", domain.ErrMissingContext, "I need to know who you are to look up your tasks.")
			}
			return "Design homepage (in_progress)", nil
		},
	}
	r := rulesRouter(t, testRegistry(t, tasks), Options{})

	conv := memory.NewConversation("alice", 0)
	a, err := r.Handle(context.Background(), domain.NewQuery("what are my tasks", 42, "alice"), conv)
	require.NoError(t, err)
	assert.Equal(t, int64(42), gotUser)
	assert.Equal(t, "Design homepage (in_progress)", a.Text)

	anon := memory.NewConversation("anon", 0)
	a, err = r.Handle(context.Background(), domain.NewQuery("what are my tasks", 0, "anon"), anon)
	require.ErrorIs(t, err, domain.ErrMissingContext)
	assert.False(t, a.Success)
	assert.Equal(t, domain.KindMissingContext, a.Kind)
	assert.Equal(t, "I need to know who you are to look up your tasks.", a.Text)
	assert.Equal(t, 1, anon.Len())
}

func TestRouterToolTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := domain.ToolDescriptor{
		Name:        "ProjectQuery",
		Description: "projects",
		Handler: func(context.Context, string, int64) (string, error) {
			<-release
			return "too late", nil
		},
	}
	r := rulesRouter(t, testRegistry(t, stuck), Options{ToolTimeout: 20 * time.Millisecond})
	conv := memory.NewConversation("c", 0)

	start := time.Now()
	a, err := r.Handle(context.Background(), domain.NewQuery("active projects", 1, "c"), conv)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.KindTimeout, a.Kind)
	assert.Equal(t, "ProjectQuery", a.Tool)
	assert.Equal(t, 0, conv.Len())
}

func TestRouterDispatch(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := domain.ToolDescriptor{
		Name:        "DocumentQuery",
		Description: "documents",
		Handler: func(context.Context, string, int64) (string, error) {
			<-release
			return "too late", nil
		},
	}
	r := rulesRouter(t, testRegistry(t, stuck), Options{ToolTimeout: 20 * time.Millisecond})

	a, err := r.Dispatch(context.Background(), "TaskQuery", domain.NewQuery("anything at all", 1, ""))
	require.NoError(t, err)
	assert.True(t, a.Success)
	assert.Equal(t, "TaskQuery: anything at all", a.Text)

	_, err = r.Dispatch(context.Background(), "NoSuchTool", domain.NewQuery("hi", 1, ""))
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Dispatch(context.Background(), "TaskQuery", domain.NewQuery("   ", 1, ""))
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	start := time.Now()
	a, err = r.Dispatch(context.Background(), "DocumentQuery", domain.NewQuery("recent docs", 1, ""))
	assert.Less(t, time.Since(start), 2*time.Second)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.SafeMessage(domain.KindTimeout), a.Text)
}

func TestRouterRecoversToolPanic(t *testing.T) {
	boom := domain.ToolDescriptor{
		Name:        "UserQuery",
		Description: "users",
		Handler: func(context.Context, string, int64) (string, error) {
			panic("nil map")
		},
	}
	r := rulesRouter(t, testRegistry(t, boom), Options{})
	conv := memory.NewConversation("c", 0)

	a, err := r.Handle(context.Background(), domain.NewQuery("What is Asha working on?", 1, "c"), conv)
	require.ErrorIs(t, err, domain.ErrToolExecution)
	assert.False(t, a.Success)
	assert.Equal(t, domain.SafeMessage(domain.KindToolExecution), a.Text)
	assert.NotContains(t, a.Text, "nil map")
	assert.Equal(t, 1, conv.Len())
}

func TestRouterToolErrorIsSanitized(t *testing.T) {
	leaky := domain.ToolDescriptor{
		Name:        "DocumentQuery",
		Description: "docs",
		Handler: func(context.Context, string, int64) (string, error) {
			return "", errors.New("pq: relation \"project_documents\" does not exist")
		},
	}
	r := rulesRouter(t, testRegistry(t, leaky), Options{})
	conv := memory.NewConversation("c", 0)

	a, err := r.Handle(context.Background(), domain.NewQuery("list documents", 1, "c"), conv)
	require.Error(t, err)
	assert.False(t, a.Success)
	assert.NotContains(t, a.Text, "project_documents")
}

func TestRouterCanceledAppendsNothing(t *testing.T) {
	r := rulesRouter(t, testRegistry(t), Options{})
	conv := memory.NewConversation("c", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, err := r.Handle(ctx, domain.NewQuery("What projects are active?", 1, "c"), conv)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, a.Success)
	assert.Equal(t, 0, conv.Len())
}

func TestRouterSerializesTurnsPerConversation(t *testing.T) {
	r := rulesRouter(t, testRegistry(t), Options{})
	conv := memory.NewConversation("shared", 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Handle(context.Background(), domain.NewQuery(fmt.Sprintf("task %d", i), 1, "shared"), conv)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	h := conv.History(0)
	require.Len(t, h, 8)
	for _, turn := range h {
		assert.Equal(t, "TaskQuery: "+turn.Query.Text, turn.Answer.Text)
	}
}

func TestRouterModelModeAnswersDirectly(t *testing.T) {
	reg := testRegistry(t)
	client := &scriptedClient{choice: "NONE", reply: "Hi! Ask me about your projects."}
	r := NewRouter(reg, NewModelStrategy(reg, client, quietLogger(), 0), client, quietLogger(), Options{})
	conv := memory.NewConversation("c", 0)

	a, err := r.Handle(context.Background(), domain.NewQuery("hello", 1, "c"), conv)
	require.NoError(t, err)
	assert.True(t, a.Success)
	assert.Equal(t, "Hi! Ask me about your projects.", a.Text)
	assert.Equal(t, "", a.Tool)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, 1, conv.Len())
}

func TestRouterModelModeDispatches(t *testing.T) {
	reg := testRegistry(t)
	client := &scriptedClient{choice: "UserQuery"}
	r := NewRouter(reg, NewModelStrategy(reg, client, quietLogger(), 0), client, quietLogger(), Options{})
	conv := memory.NewConversation("c", 0)

	a, err := r.Handle(context.Background(), domain.NewQuery("who's Asha", 1, "c"), conv)
	require.NoError(t, err)
	assert.Equal(t, "UserQuery", a.Tool)
	assert.Equal(t, 1, client.calls)
}

func TestRouterModelFailureIsNotRecorded(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		err  error
		kind domain.Kind
	}{
		{domain.NewError("llm", domain.ErrService, "502"), domain.KindService},
		{domain.NewError("llm", domain.ErrRateLimit, "429"), domain.KindRateLimit},
		{domain.NewError("llm", domain.ErrTimeout, "deadline"), domain.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			client := &scriptedClient{err: tt.err}
			r := NewRouter(reg, NewModelStrategy(reg, client, quietLogger(), 0), client, quietLogger(), Options{})
			conv := memory.NewConversation("c", 0)

			a, err := r.Handle(context.Background(), domain.NewQuery("what are my tasks", 1, "c"), conv)
			require.Error(t, err)
			assert.False(t, a.Success)
			assert.Equal(t, tt.kind, a.Kind)
			assert.Equal(t, domain.SafeMessage(tt.kind), a.Text)
			assert.Equal(t, 0, conv.Len())
		})
	}
}
