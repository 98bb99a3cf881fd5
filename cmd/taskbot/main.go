package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chris/taskbot/config"
	"github.com/chris/taskbot/internal/agent"
	"github.com/chris/taskbot/internal/api"
	"github.com/chris/taskbot/internal/db"
	"github.com/chris/taskbot/internal/discord"
	"github.com/chris/taskbot/internal/domain"
	"github.com/chris/taskbot/internal/llm"
	"github.com/chris/taskbot/internal/logging"
	"github.com/chris/taskbot/internal/mcpserver"
	"github.com/chris/taskbot/internal/memory"
	"github.com/chris/taskbot/internal/scheduler"
	"github.com/chris/taskbot/internal/service"
	"github.com/chris/taskbot/internal/tools"
	"github.com/chris/taskbot/internal/tracing"
)

const version = "0.1.0"

const usage = `usage: taskbot <command>

commands:
  serve      run the HTTP API, the Discord bot (if configured) and background jobs
  cli        ask questions on stdin (default)
  mcp        expose the tools over MCP on stdio
  seed       load demo data into an empty database
  install    install "taskbot serve" as a launchd agent
  uninstall  remove the launchd agent
  start | stop | restart | status | logs`

func main() {
	cmd := "cli"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "install":
		exit(service.Install(service.DefaultPaths(), ".env"))
		return
	case "uninstall":
		exit(service.Uninstall(service.DefaultPaths()))
		return
	case "start":
		exit(service.Start())
		return
	case "stop":
		exit(service.Stop())
		return
	case "restart":
		exit(service.Restart())
		return
	case "status":
		exit(service.Status())
		return
	case "logs":
		exit(service.Logs(service.DefaultPaths()))
		return
	case "serve", "cli", "mcp", "seed":
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	shutdownTracing, err := tracing.Setup(cfg.TracingEnabled)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if cmd == "seed" {
		err := database.WithSession(context.Background(), func(s *db.Session) error {
			return s.SeedDemo(context.Background(), time.Now())
		})
		exit(err)
		return
	}

	router, err := buildRouter(cfg, database, logger)
	if err != nil {
		log.Fatalf("failed to build router: %v", err)
	}
	convs := memory.NewStore(cfg.MemoryMaxTurns)

	switch cmd {
	case "serve":
		exit(runServe(cfg, database, router, convs, logger))
	case "mcp":
		exit(mcpserver.Serve(mcpserver.New(router, convs, version)))
	default:
		exit(runCLI(router, convs, database))
	}
}

func exit(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// buildRouter registers the tools in routing order and picks the strategy.
func buildRouter(cfg *config.Config, database *db.DB, logger *slog.Logger) (*agent.Router, error) {
	reg := agent.NewRegistry()
	reg.MustRegister(tools.NewDataTools(database, logger).Descriptors()...)
	switch cfg.SearchBackend {
	case "duckduckgo":
		reg.MustRegister(tools.NewSearchTool(tools.NewDuckDuckGoBackend(), logger).Descriptor())
	case "searxng":
		reg.MustRegister(tools.NewSearchTool(tools.NewSearXNGBackend(cfg.SearXNGURL), logger).Descriptor())
	}

	opts := agent.Options{ToolTimeout: cfg.ToolTimeout, LLMTimeout: cfg.LLMTimeout}

	if cfg.RouterStrategy == agent.StrategyModel {
		client, err := buildClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		strategy := agent.NewModelStrategy(reg, client, logger, 0)
		return agent.NewRouter(reg, strategy, client, logger, opts), nil
	}

	rules := agent.DefaultRulesFor(reg)
	if cfg.RulesFile != "" {
		loaded, err := config.LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	strategy, err := agent.NewRuleStrategy(reg, rules)
	if err != nil {
		return nil, err
	}
	return agent.NewRouter(reg, strategy, nil, logger, opts), nil
}

func buildClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	apiKey := cfg.AnthropicKey
	if cfg.LLMProvider == "openai" {
		apiKey = cfg.OpenAIKey
	}

	client, err := llm.NewClient(llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		APIKey:    apiKey,
		AuthToken: cfg.AnthropicToken,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.OllamaBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}
	limited := llm.WithRateLimit(client, cfg.LLMRatePerMin, 5)
	return llm.WithBreaker(limited, llm.BreakerConfig{MaxFailures: uint32(max(cfg.BreakerTrips, 1))}, logger), nil
}

func runServe(cfg *config.Config, database *db.DB, router *agent.Router, convs *memory.Store, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(scheduler.Config{
		SweepCron:     cfg.SweepCron,
		IdleAfter:     cfg.ConversationIdle,
		RetentionDays: cfg.ChatRetentionDays,
	}, convs, database, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.DiscordToken != "" {
		bot, err := discord.NewBot(cfg.DiscordToken, router, convs, userResolver{database}, logger)
		if err != nil {
			return err
		}
		if err := bot.Open(); err != nil {
			return err
		}
		defer bot.Close()
	}

	if len(cfg.APITokens) == 0 {
		logger.Warn("API_TOKENS is empty; every /chat request will be rejected")
	}
	gin.SetMode(cfg.GinMode)
	srv := api.NewServer(router, convs, database, cfg.APITokens, logger)
	return srv.Run(ctx, cfg.HTTPAddr)
}

// userResolver maps Discord usernames onto store users.
type userResolver struct {
	db *db.DB
}

func (r userResolver) ResolveUser(ctx context.Context, username string) (int64, error) {
	var id int64
	err := r.db.WithSession(ctx, func(s *db.Session) error {
		u, err := s.FindUserByUsername(ctx, username)
		if err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	return id, err
}

func runCLI(router *agent.Router, convs *memory.Store, database *db.DB) error {
	ctx := context.Background()
	userID, err := cliLogin(ctx, database, os.Getenv("TASKBOT_USER"), os.Getenv("TASKBOT_PASSWORD"))
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(os.Stdin)
	conv := convs.GetOrCreate("cli")

	// Check if stdin is a pipe (non-interactive)
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	if !isPipe {
		fmt.Print("taskbot> ")
	}

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			if !isPipe {
				fmt.Print("taskbot> ")
			}
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		answer, _ := router.Handle(ctx, domain.NewQuery(input, userID, conv.ID()), conv)
		fmt.Println(answer.Text)

		if isPipe {
			break // single exchange in pipe mode
		}
		fmt.Print("taskbot> ")
	}
	return scanner.Err()
}

// cliLogin signs the terminal user in so "my tasks" works from the REPL.
// An empty username runs the session anonymously.
func cliLogin(ctx context.Context, database *db.DB, username, password string) (int64, error) {
	if username == "" {
		return 0, nil
	}
	var id int64
	err := database.WithSession(ctx, func(s *db.Session) error {
		ok, err := s.CheckPassword(ctx, username, password)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("login %s: wrong password", username)
		}
		u, err := s.FindUserByUsername(ctx, username)
		if err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("login %s: no such user", username)
	}
	return id, err
}
