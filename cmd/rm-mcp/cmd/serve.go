package cmd

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/wavyrai/rm-mcp/internal/adapters/mcp"
)

func serve(ctx context.Context) error {
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.close()

	s := server.NewMCPServer(
		"rm-mcp",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("ping",
			mcp.WithDescription("Health check — returns pong"),
		),
		func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("pong"), nil
		},
	)

	mcpadapter.Register(s, svc.Services)

	return server.ServeStdio(s)
}
