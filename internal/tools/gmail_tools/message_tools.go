package gmail_tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxprune/internal/gmail"
	"github.com/teemow/inboxprune/internal/mailbox"
	"github.com/teemow/inboxprune/internal/server"
)

func registerMessageTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getMessageTool := mcp.NewTool("gmail_get_message",
		mcp.WithDescription("Get one Gmail item by ID with its headers and optionally its plain-text body"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithString("itemId",
			mcp.Required(),
			mcp.Description("The ID of the Gmail message"),
		),
		mcp.WithBoolean("includeHeaders",
			mcp.Description("Include all message headers (default: true)"),
		),
		mcp.WithBoolean("includeBody",
			mcp.Description("Include the plain-text body (default: false)"),
		),
	)
	addTool(s, sc, getMessageTool, handleGetMessage)

	scanTool := mcp.NewTool("gmail_scan_unsubscribe",
		mcp.WithDescription("Collect unique List-Unsubscribe links from the items matching a filter. "+
			"Links are only listed, never followed."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithString("filter",
			mcp.Required(),
			mcp.Description("Gmail search query (e.g., 'category:promotions')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of items to scan, 1-500 (default: 50)"),
		),
		mcp.WithBoolean("verifyTrust",
			mcp.Description("Mark links whose domain matches a list of well-known senders (default: true)"),
		),
	)
	addTool(s, sc, scanTool, handleScanUnsubscribe)

	labelsTool := mcp.NewTool("gmail_list_labels",
		mcp.WithDescription("List Gmail labels with their message counts"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithBoolean("includeSystemLabels",
			mcp.Description("Include system labels such as INBOX and SPAM (default: true)"),
		),
		mcp.WithBoolean("includeUserLabels",
			mcp.Description("Include user-created labels (default: true)"),
		),
	)
	addTool(s, sc, labelsTool, handleListLabels)

	return nil
}

func handleGetMessage(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	itemID, errResult := requiredString(args, "itemId")
	if errResult != nil {
		return errResult, nil
	}
	svc, errResult := serviceFor(args, sc)
	if errResult != nil {
		return errResult, nil
	}

	includeBody := boolArg(args, "includeBody", false)
	item, err := svc.ItemDetails(ctx, itemID, includeBody)
	if errors.Is(err, gmail.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Message %s not found", itemID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get message: %v", err)), nil
	}
	return mcp.NewToolResultText(mailbox.RenderItem(item, boolArg(args, "includeHeaders", true), includeBody)), nil
}

func handleScanUnsubscribe(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	filter, errResult := requiredString(args, "filter")
	if errResult != nil {
		return errResult, nil
	}
	svc, errResult := serviceFor(args, sc)
	if errResult != nil {
		return errResult, nil
	}

	verifyTrust := boolArg(args, "verifyTrust", true)
	res, err := svc.ScanUnsubscribe(ctx, filter, intArg(args, "maxResults", mailbox.DefaultScanResults), verifyTrust)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to scan for unsubscribe links: %v", err)), nil
	}
	return mcp.NewToolResultText(mailbox.RenderUnsubscribe(res, verifyTrust)), nil
}

func handleListLabels(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	svc, errResult := serviceFor(args, sc)
	if errResult != nil {
		return errResult, nil
	}

	labels, err := svc.ListLabels(ctx, mailbox.LabelFilter{
		IncludeSystem: boolArg(args, "includeSystemLabels", true),
		IncludeUser:   boolArg(args, "includeUserLabels", true),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list labels: %v", err)), nil
	}
	return mcp.NewToolResultText(mailbox.RenderLabels(labels)), nil
}
