// Command mcp-server exposes the flag moderation workflow as MCP tools over
// stdio, so assistants can triage, assign and resolve flags on a user's behalf.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/observability"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.LoadClient()

	logger, err := observability.InitCLILogger("flagdesk-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	opts := []client.Option{client.WithLogger(logger)}
	if cfg.Timeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.Timeout))
	}
	api := client.New(cfg.APIURL, client.NewSession(cfg.Token, cfg.TokenFile), opts...)
	server := newServer(api, cfg.ContextWindow, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var transport mcp.Transport = &mcp.StdioTransport{}
	if os.Getenv("MCP_LOG_FRAMES") != "" {
		transport = &mcp.LoggingTransport{Transport: transport, Writer: os.Stderr}
	}

	logger.Info("MCP server running via stdio", zap.String("api", cfg.APIURL))
	if err := server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

// newServer registers the flag tools on a fresh MCP server.
func newServer(api *client.Client, window int, logger *zap.Logger) *mcp.Server {
	tools := newFlagTools(api, window, logger)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "flagdesk",
		Version: observability.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_flags",
		Description: "List flagged tutoring content with per-status counts",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"pending", "assigned", "resolved"},
					"description": "Only return flags in this status (optional)",
				},
				"mine": map[string]interface{}{
					"type":        "boolean",
					"description": "Return the flags assigned to the calling faculty member instead of all flags",
				},
			},
		},
	}, tools.ListFlags)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "show_flag",
		Description: "Show one flag with its conversation context or quiz review",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"flag_id": map[string]interface{}{
					"type":        "integer",
					"description": "Flag ID",
				},
			},
			"required": []string{"flag_id"},
		},
	}, tools.ShowFlag)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_faculty",
		Description: "List the faculty members flags can be assigned to",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, tools.ListFaculty)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assign_flag",
		Description: "Assign or reassign a flag to a faculty member (admin only)",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"flag_id": map[string]interface{}{
					"type":        "integer",
					"description": "Flag ID",
				},
				"faculty_id": map[string]interface{}{
					"type":        "integer",
					"description": "User ID of the faculty member, see list_faculty",
				},
				"version": map[string]interface{}{
					"type":        "integer",
					"description": "Only assign if the flag is still at this version (optional)",
				},
			},
			"required": []string{"flag_id", "faculty_id"},
		},
	}, tools.AssignFlag)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_flag",
		Description: "Resolve a flag with knowledge-base feedback and an optional corrected response",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"flag_id": map[string]interface{}{
					"type":        "integer",
					"description": "Flag ID",
				},
				"feedback": map[string]interface{}{
					"type":        "string",
					"description": "Feedback recorded for the knowledge base",
				},
				"corrected_response": map[string]interface{}{
					"type":        "string",
					"description": "Corrected response; when set the student receives the standard correction notice (optional)",
				},
				"version": map[string]interface{}{
					"type":        "integer",
					"description": "Only resolve if the flag is still at this version (optional)",
				},
			},
			"required": []string{"flag_id", "feedback"},
		},
	}, tools.ResolveFlag)

	return server
}
