package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrTool      = "tool"
	attrAccount   = "account"
	attrCode      = "code"
	attrEvent     = "event"
)

// Metrics records inboxprune's counters and histograms. A zero Metrics is
// valid and records nothing.
type Metrics struct {
	// HTTP
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Gmail API
	gatewayCallsTotal   metric.Int64Counter
	gatewayCallDuration metric.Float64Histogram
	retriesTotal        metric.Int64Counter

	// Credentials
	credentialRefreshTotal metric.Int64Counter

	// MCP tools
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Deletion
	batchesTotal          metric.Int64Counter
	itemsDeletedTotal     metric.Int64Counter
	itemsFailedTotal      metric.Int64Counter
	ticketsTotal          metric.Int64Counter
	policyRejectionsTotal metric.Int64Counter

	// detailedLabels adds high-cardinality labels such as the account
	detailedLabels bool
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}
	var err error

	counter := func(dst *metric.Int64Counter, name, desc, unit string) {
		if err != nil {
			return
		}
		*dst, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			err = fmt.Errorf("failed to create %s counter: %w", name, err)
		}
	}
	histogram := func(dst *metric.Float64Histogram, name, desc string, bounds ...float64) {
		if err != nil {
			return
		}
		*dst, err = meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(bounds...))
		if err != nil {
			err = fmt.Errorf("failed to create %s histogram: %w", name, err)
		}
	}

	counter(&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}")
	histogram(&m.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds",
		0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0)

	counter(&m.gatewayCallsTotal, "gmail_api_calls_total", "Total number of Gmail API calls", "{call}")
	histogram(&m.gatewayCallDuration, "gmail_api_call_duration_seconds", "Gmail API call duration in seconds",
		0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0)
	counter(&m.retriesTotal, "gmail_api_retries_total", "Total number of retried Gmail API calls", "{retry}")

	counter(&m.credentialRefreshTotal, "credential_refresh_total", "Total number of credential refresh attempts", "{attempt}")

	counter(&m.toolInvocationsTotal, "mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}")
	histogram(&m.toolDuration, "mcp_tool_duration_seconds", "MCP tool execution duration in seconds",
		0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 120.0)

	counter(&m.batchesTotal, "deletion_batches_total", "Total number of delete batches dispatched", "{batch}")
	counter(&m.itemsDeletedTotal, "deletion_items_deleted_total", "Total number of items deleted", "{item}")
	counter(&m.itemsFailedTotal, "deletion_items_failed_total", "Total number of items whose batch failed", "{item}")
	counter(&m.ticketsTotal, "confirmation_tickets_total", "Confirmation ticket events", "{ticket}")
	counter(&m.policyRejectionsTotal, "policy_rejections_total", "Requests stopped by a deletion policy", "{rejection}")

	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGatewayCall records one Gmail API call.
//
// Parameters:
//   - operation: list, get, batch_delete or list_labels
//   - status: "success" or "error"
//   - duration: time taken by the call
func (m *Metrics) RecordGatewayCall(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.gatewayCallsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.gatewayCallsTotal.Add(ctx, 1, attrs)
	m.gatewayCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRetry counts one retry of a transient failure.
func (m *Metrics) RecordRetry(ctx context.Context) {
	if m == nil || m.retriesTotal == nil {
		return
	}
	m.retriesTotal.Add(ctx, 1)
}

// RecordCredentialRefresh records a credential refresh with its result:
// "success", "failure" or "expired".
func (m *Metrics) RecordCredentialRefresh(ctx context.Context, result string) {
	if m == nil || m.credentialRefreshTotal == nil {
		return
	}
	m.credentialRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithAccount(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithAccount records an MCP tool invocation. The
// account label is only added when detailed labels are enabled.
func (m *Metrics) RecordToolInvocationWithAccount(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}
	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordBatch records one dispatched delete batch.
func (m *Metrics) RecordBatch(ctx context.Context, status string) {
	if m == nil || m.batchesTotal == nil {
		return
	}
	m.batchesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordDeletedItems adds the item totals of one delete run.
func (m *Metrics) RecordDeletedItems(ctx context.Context, deleted, failed int) {
	if m == nil || m.itemsDeletedTotal == nil {
		return
	}
	if deleted > 0 {
		m.itemsDeletedTotal.Add(ctx, int64(deleted))
	}
	if failed > 0 {
		m.itemsFailedTotal.Add(ctx, int64(failed))
	}
}

// RecordTicketEvent records a ticket being issued, redeemed or rejected.
func (m *Metrics) RecordTicketEvent(ctx context.Context, event string) {
	if m == nil || m.ticketsTotal == nil {
		return
	}
	m.ticketsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrEvent, event)))
}

// RecordPolicyRejection records a request stopped by policy, labeled with
// the policy code.
func (m *Metrics) RecordPolicyRejection(ctx context.Context, code string) {
	if m == nil || m.policyRejectionsTotal == nil {
		return
	}
	m.policyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrCode, code)))
}
