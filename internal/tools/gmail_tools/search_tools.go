package gmail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxprune/internal/mailbox"
	"github.com/teemow/inboxprune/internal/server"
)

func registerSearchTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	searchTool := mcp.NewTool("gmail_search",
		mcp.WithDescription("Search Gmail with a filter query and list the matching items with sender, subject and date"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithString("filter",
			mcp.Required(),
			mcp.Description("Gmail search query (e.g., 'from:news@example.com older_than:1y')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of items to return, 1-500 (default: 100)"),
		),
		mcp.WithBoolean("includeSpamTrash",
			mcp.Description("Include items in spam and trash (default: false)"),
		),
		mcp.WithString("pageToken",
			mcp.Description("Continuation token from a previous search"),
		),
	)
	addTool(s, sc, searchTool, handleSearch)

	countTool := mcp.NewTool("gmail_count",
		mcp.WithDescription("Estimate how many Gmail items match a filter query. The number is the server's estimate, not an exact count."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithString("filter",
			mcp.Required(),
			mcp.Description("Gmail search query"),
		),
		mcp.WithBoolean("includeSpamTrash",
			mcp.Description("Include items in spam and trash (default: false)"),
		),
	)
	addTool(s, sc, countTool, handleCount)

	previewTool := mcp.NewTool("gmail_preview_deletion",
		mcp.WithDescription("Show which items gmail_delete would remove for a filter. Nothing is deleted."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithString("filter",
			mcp.Required(),
			mcp.Description("Gmail search query the delete would use"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of items to show, 1-500 (default: 50)"),
		),
		mcp.WithBoolean("includeSpamTrash",
			mcp.Description("Include items in spam and trash (default: false)"),
		),
		mcp.WithBoolean("showFullHeaders",
			mcp.Description("List every fetched header per item (default: false)"),
		),
	)
	addTool(s, sc, previewTool, handlePreviewDeletion)

	return nil
}

func handleSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	filter, errResult := requiredString(args, "filter")
	if errResult != nil {
		return errResult, nil
	}
	svc, errResult := serviceFor(args, sc)
	if errResult != nil {
		return errResult, nil
	}

	res, err := svc.Search(ctx, mailbox.SearchRequest{
		Filter:           filter,
		MaxResults:       intArg(args, "maxResults", mailbox.DefaultSearchResults),
		IncludeSpamTrash: boolArg(args, "includeSpamTrash", false),
		PageToken:        stringArg(args, "pageToken"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search: %v", err)), nil
	}
	return mcp.NewToolResultText(mailbox.RenderSearch(res)), nil
}

func handleCount(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	filter, errResult := requiredString(args, "filter")
	if errResult != nil {
		return errResult, nil
	}
	svc, errResult := serviceFor(args, sc)
	if errResult != nil {
		return errResult, nil
	}

	est, err := svc.Count(ctx, filter, boolArg(args, "includeSpamTrash", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to count: %v", err)), nil
	}
	return mcp.NewToolResultText(mailbox.RenderCount(filter, est)), nil
}

func handlePreviewDeletion(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	filter, errResult := requiredString(args, "filter")
	if errResult != nil {
		return errResult, nil
	}
	svc, errResult := serviceFor(args, sc)
	if errResult != nil {
		return errResult, nil
	}

	preview, err := svc.PreviewForDeletion(ctx, mailbox.PreviewRequest{
		Filter:           filter,
		MaxResults:       intArg(args, "maxResults", mailbox.DefaultPreviewResults),
		IncludeSpamTrash: boolArg(args, "includeSpamTrash", false),
		ShowFullHeaders:  boolArg(args, "showFullHeaders", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to preview deletion: %v", err)), nil
	}
	return mcp.NewToolResultText(mailbox.RenderPreview(preview)), nil
}
