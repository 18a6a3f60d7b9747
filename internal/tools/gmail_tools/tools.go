package gmail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxprune/internal/deletion"
	"github.com/teemow/inboxprune/internal/mailbox"
	"github.com/teemow/inboxprune/internal/server"
	"github.com/teemow/inboxprune/internal/tools/common"
)

const accountDescription = "Account name (default: 'default'). Used to manage multiple Google accounts."

// RegisterGmailTools registers all Gmail tools with the MCP server. Every
// handler is wrapped with common.InstrumentedToolHandler.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := registerSearchTools(s, sc); err != nil {
		return fmt.Errorf("failed to register search tools: %w", err)
	}
	if err := registerDeleteTools(s, sc); err != nil {
		return fmt.Errorf("failed to register delete tools: %w", err)
	}
	if err := registerMessageTools(s, sc); err != nil {
		return fmt.Errorf("failed to register message tools: %w", err)
	}
	return nil
}

type handlerFunc func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

func addTool(s *mcpserver.MCPServer, sc *server.ServerContext, tool mcp.Tool, handler handlerFunc) {
	s.AddTool(tool, common.InstrumentedToolHandler(tool.Name, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handler(ctx, request, sc)
		}))
}

// serviceFor returns the mailbox service for the request's account, or an
// error result when the account cannot be used.
func serviceFor(args map[string]interface{}, sc *server.ServerContext) (*mailbox.Service, *mcp.CallToolResult) {
	account := common.GetAccountFromArgs(args)
	svc, err := sc.ServiceForAccount(account)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to open Gmail for account %s: %v", account, err))
	}
	return svc, nil
}

// policyResult turns a policy rejection into an error result and tags the
// invocation with its code.
func policyResult(ctx context.Context, pe *deletion.PolicyError, text string) *mcp.CallToolResult {
	common.SetPolicyCode(ctx, string(pe.Code))
	return mcp.NewToolResultError(text)
}

func requiredString(args map[string]interface{}, name string) (string, *mcp.CallToolResult) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s is required", name))
	}
	return v, nil
}

func stringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

func boolArg(args map[string]interface{}, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

// intArg reads a numeric argument. JSON numbers arrive as float64.
func intArg(args map[string]interface{}, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
