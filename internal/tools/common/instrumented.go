package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxprune/internal/instrumentation"
	"github.com/teemow/inboxprune/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

type invocationKey struct{}

// SetPolicyCode attaches the policy code of a rejected operation to the
// invocation being recorded for ctx. It is a no-op outside an instrumented
// handler.
func SetPolicyCode(ctx context.Context, code string) {
	if ti, ok := ctx.Value(invocationKey{}).(*instrumentation.ToolInvocation); ok {
		ti.WithCode(code)
	}
}

// InstrumentedToolHandler wraps a tool handler with a span, metrics and the
// tool invocation log.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		account := GetAccountFromArgs(args)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.NewSpanAttributeBuilder().WithAccount(account).Build()...)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithAccount(account)
		if filter, ok := args["filter"].(string); ok {
			invocation.WithFilter(filter)
		}
		ctx = context.WithValue(ctx, invocationKey{}, invocation)

		start := time.Now()
		result, err := handler(ctx, request)
		duration := time.Since(start)

		success := err == nil && (result == nil || !result.IsError)
		invocation.Complete(success, err)
		switch {
		case err != nil:
			instrumentation.SetSpanError(span, err)
		case !success:
			span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
				WithOutcome(instrumentation.StatusError, invocation.Code).Build()...)
		default:
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocationWithAccount(ctx, toolName, invocation.Status(), account, duration)
		sc.ToolLogger().Log(ctx, invocation)

		return result, err
	}
}
