// Package mcpserver exposes the registered tools over the Model Context Protocol.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chris/taskbot/internal/agent"
	"github.com/chris/taskbot/internal/domain"
	"github.com/chris/taskbot/internal/memory"
)

// AskTool is the routed entry point: it picks a tool the same way chat does.
const AskTool = "ask"

// New builds an MCP server with one tool per registered handler plus "ask".
func New(router *agent.Router, convs *memory.Store, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"taskbot",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTools(serverTools(router, convs)...)
	return s
}

func serverTools(router *agent.Router, convs *memory.Store) []server.ServerTool {
	ask := &askTool{router: router, convs: convs}
	out := []server.ServerTool{{Tool: ask.Definition(), Handler: ask.Handle}}
	for _, d := range router.Registry().List() {
		t := &directTool{router: router, desc: d}
		out = append(out, server.ServerTool{Tool: t.Definition(), Handler: t.Handle})
	}
	return out
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// --- direct tools ---

type directTool struct {
	router *agent.Router
	desc   domain.ToolDescriptor
}

func (t *directTool) Definition() mcp.Tool {
	return mcp.NewTool(t.desc.Name,
		mcp.WithDescription(t.desc.Description),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question, in plain language"),
		),
		mcp.WithNumber("user_id",
			mcp.Description("Id of the person asking; needed for questions about \"my\" projects, tasks or documents"),
		),
	)
}

func (t *directTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, userID, errResult := args(req)
	if errResult != nil {
		return errResult, nil
	}
	answer, _ := t.router.Dispatch(ctx, t.desc.Name, domain.NewQuery(query, userID, ""))
	if !answer.Success {
		return mcp.NewToolResultError(answer.Text), nil
	}
	return mcp.NewToolResultText(answer.Text), nil
}

// --- ask ---

type askTool struct {
	router *agent.Router
	convs  *memory.Store
}

func (t *askTool) Definition() mcp.Tool {
	var names []string
	for _, d := range t.router.Registry().List() {
		names = append(names, d.Name)
	}
	return mcp.NewTool(AskTool,
		mcp.WithDescription(fmt.Sprintf(
			"Ask the project assistant a question. It picks the right lookup (%s) and remembers the conversation.",
			strings.Join(names, ", "))),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question, in plain language"),
		),
		mcp.WithNumber("user_id",
			mcp.Description("Id of the person asking"),
		),
	)
}

func (t *askTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, userID, errResult := args(req)
	if errResult != nil {
		return errResult, nil
	}
	convID := conversationID(userID)
	answer, _ := t.router.Handle(ctx, domain.NewQuery(query, userID, convID), t.convs.GetOrCreate(convID))
	if !answer.Success {
		return mcp.NewToolResultError(answer.Text), nil
	}
	return mcp.NewToolResultText(answer.Text), nil
}

// conversationID keeps each user's history apart. Anonymous callers share mcp:0.
func conversationID(userID int64) string {
	return fmt.Sprintf("mcp:%d", userID)
}

func args(req mcp.CallToolRequest) (string, int64, *mcp.CallToolResult) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return "", 0, mcp.NewToolResultError("'query' is required")
	}
	var userID int64
	if v, ok := req.GetArguments()["user_id"].(float64); ok && v > 0 {
		userID = int64(v)
	}
	return query, userID, nil
}
