// Package instrumentation provides OpenTelemetry metrics and tracing for
// the inboxprune MCP server.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// Gmail API:
//   - gmail_api_calls_total, gmail_api_call_duration_seconds: by operation and status
//   - gmail_api_retries_total: transient failures that were retried
//   - credential_refresh_total: by result
//
// MCP tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds: by tool and status
//
// Deletion:
//   - deletion_batches_total: by status
//   - deletion_items_deleted_total, deletion_items_failed_total
//   - confirmation_tickets_total: by event (issued, redeemed, rejected)
//   - policy_rejections_total: by policy code
//
// # Tracing
//
// Spans are named tool.<name> for MCP tool calls and gmail.<operation> for
// Gmail API calls.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: default true
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//   - OTEL_TRACES_SAMPLER_ARG: default 0.1
//   - OTEL_SERVICE_NAME: default inboxprune
//   - TOOL_LOGGING_ENABLED, TOOL_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordGatewayCall(ctx, instrumentation.OperationList, instrumentation.StatusSuccess, time.Since(start))
package instrumentation
