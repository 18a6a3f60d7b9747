package gmail

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxprune/internal/instrumentation"
)

// Instrumented wraps a Gateway with a span and a metric per call.
type Instrumented struct {
	next    Gateway
	metrics *instrumentation.Metrics
}

var _ Gateway = (*Instrumented)(nil)

// NewInstrumented returns next wrapped with instrumentation. A nil metrics
// only records spans.
func NewInstrumented(next Gateway, metrics *instrumentation.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: metrics}
}

func (g *Instrumented) observe(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := instrumentation.StartGatewaySpan(ctx, operation, attrs...)
	start := time.Now()
	return ctx, func(err error) {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		g.metrics.RecordGatewayCall(ctx, operation, status, time.Since(start))
		span.End()
	}
}

func (g *Instrumented) List(ctx context.Context, query string, maxResults int64, pageToken string, includeSpamTrash bool) (ListPage, error) {
	ctx, done := g.observe(ctx, instrumentation.OperationList)
	page, err := g.next.List(ctx, query, maxResults, pageToken, includeSpamTrash)
	done(err)
	return page, err
}

func (g *Instrumented) Get(ctx context.Context, id string, format Format) (ItemSummary, error) {
	ctx, done := g.observe(ctx, instrumentation.OperationGet, attribute.String("gmail.format", string(format)))
	item, err := g.next.Get(ctx, id, format)
	done(err)
	return item, err
}

func (g *Instrumented) BatchDelete(ctx context.Context, ids []string) error {
	ctx, done := g.observe(ctx, instrumentation.OperationBatchDelete,
		attribute.Int(instrumentation.SpanAttrItemCount, len(ids)))
	err := g.next.BatchDelete(ctx, ids)
	done(err)
	return err
}

func (g *Instrumented) ListLabels(ctx context.Context) ([]Label, error) {
	ctx, done := g.observe(ctx, instrumentation.OperationListLabels)
	labels, err := g.next.ListLabels(ctx)
	done(err)
	return labels, err
}
