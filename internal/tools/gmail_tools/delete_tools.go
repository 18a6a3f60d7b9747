package gmail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxprune/internal/deletion"
	"github.com/teemow/inboxprune/internal/mailbox"
	"github.com/teemow/inboxprune/internal/server"
)

func registerDeleteTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	deleteTool := mcp.NewTool("gmail_delete",
		mcp.WithDescription("Permanently delete the Gmail items matching a filter. "+
			"Runs as a dry run by default and returns a single-use confirmationToken bound to the matched items. "+
			"Call again with dryRun=false and that token to delete exactly those items. "+
			"Requests matching more than maxDeletions items are rejected."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithString("filter",
			mcp.Required(),
			mcp.Description("Gmail search query selecting the items to delete"),
		),
		mcp.WithBoolean("dryRun",
			mcp.Description("Only report what would be deleted and issue a confirmation token (default: true)"),
		),
		mcp.WithNumber("maxDeletions",
			mcp.Description(fmt.Sprintf("Reject the request when more items match, 1-%d (default: %d)",
				deletion.MaxDeletionsLimit, deletion.DefaultMaxDeletions)),
		),
		mcp.WithBoolean("requireConfirmation",
			mcp.Description("Require a confirmation token from a dry run before deleting (default: true)"),
		),
		mcp.WithBoolean("includeSpamTrash",
			mcp.Description("Include items in spam and trash (default: false)"),
		),
		mcp.WithString("confirmationToken",
			mcp.Description("Token returned by a dry run with the same filter and account. "+
				"Tokens are usable once and expire after the ticket TTL (5 minutes by default). A token redeemed late gets expired_ticket, "+
				"but once it is more than 10 minutes past its expiry it is forgotten and reported as invalid_ticket."),
		),
	)
	addTool(s, sc, deleteTool, handleDelete)

	return nil
}

func handleDelete(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	filter, errResult := requiredString(args, "filter")
	if errResult != nil {
		return errResult, nil
	}
	svc, errResult := serviceFor(args, sc)
	if errResult != nil {
		return errResult, nil
	}

	out := svc.Delete(ctx, deletion.Request{
		Filter:              filter,
		DryRun:              boolArg(args, "dryRun", true),
		MaxDeletions:        intArg(args, "maxDeletions", 0),
		RequireConfirmation: boolArg(args, "requireConfirmation", true),
		IncludeSpamTrash:    boolArg(args, "includeSpamTrash", false),
		Token:               stringArg(args, "confirmationToken"),
	})

	text := mailbox.RenderDeletion(out)
	switch out.Kind {
	case deletion.KindCompleted, deletion.KindDryRunIssued:
		return mcp.NewToolResultText(text), nil
	}
	if pe, ok := out.Policy(); ok {
		return policyResult(ctx, pe, text), nil
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to delete: %s", text)), nil
}
