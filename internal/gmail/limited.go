package gmail

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Gateway so that every call first waits for a token from
// a shared limiter. It smooths bursts from concurrent metadata fetches; the
// batch pacing delay is applied separately by the scheduler.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

var _ Gateway = (*RateLimited)(nil)

// NewRateLimited limits next to rps calls per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimited(next Gateway, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) List(ctx context.Context, query string, maxResults int64, pageToken string, includeSpamTrash bool) (ListPage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return ListPage{}, err
	}
	return r.next.List(ctx, query, maxResults, pageToken, includeSpamTrash)
}

func (r *RateLimited) Get(ctx context.Context, id string, format Format) (ItemSummary, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return ItemSummary{}, err
	}
	return r.next.Get(ctx, id, format)
}

func (r *RateLimited) BatchDelete(ctx context.Context, ids []string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.BatchDelete(ctx, ids)
}

func (r *RateLimited) ListLabels(ctx context.Context) ([]Label, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.ListLabels(ctx)
}
