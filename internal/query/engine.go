package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxprune/internal/batch"
	"github.com/teemow/inboxprune/internal/gmail"
	"github.com/teemow/inboxprune/internal/logging"
	"github.com/teemow/inboxprune/internal/retry"
)

const (
	// MaxResultsLimit bounds a single search.
	MaxResultsLimit = gmail.MaxListPageSize

	DefaultFetchBatchSize = 50
	DefaultPacingDelay    = 2 * time.Second

	// SpamTrashExclusion is appended to filters unless spam and trash are
	// explicitly included.
	SpamTrashExclusion = "-in:spam -in:trash"

	maxReportedFetchErrors = 5
)

// ErrInvalidMaxResults is returned for a maxResults outside 1..MaxResultsLimit.
var ErrInvalidMaxResults = errors.New("maxResults must be between 1 and 500")

// Config tunes metadata fetching.
type Config struct {
	// FetchBatchSize is how many metadata fetches run together.
	FetchBatchSize int
	// PacingDelay separates fetch batches.
	PacingDelay time.Duration
	// Concurrency caps in-flight fetches within a batch; 0 means the whole batch.
	Concurrency int
}

// Request is a search.
type Request struct {
	Filter           string
	MaxResults       int
	IncludeSpamTrash bool
	// PageToken continues a previous search.
	PageToken string
}

// Result is the outcome of a search.
type Result struct {
	Items []gmail.ItemSummary
	// EstimatedTotal is the server's estimate for the whole filter and may
	// exceed len(Items). It is not adjusted for dropped items.
	EstimatedTotal int64
	Continuation   string
	// Dropped counts ids whose metadata could not be fetched.
	Dropped     int
	FetchErrors []string
}

// IDs returns the item ids in result order.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.ID
	}
	return ids
}

// Truncated reports whether the filter matched more items than were returned.
func (r Result) Truncated() bool {
	return r.EstimatedTotal > int64(len(r.Items)) || r.Continuation != ""
}

// Estimate is an approximate match count. Count never performs an exact
// server-side count; Exact is always false for values it returns.
type Estimate struct {
	Value int64
	Exact bool
}

// Engine executes filters against the gateway.
type Engine struct {
	gateway gmail.Gateway
	retry   *retry.Executor
	cfg     Config
	logger  *slog.Logger

	// Sleep pauses between fetch batches.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns an Engine. Every gateway call goes through executor.
func New(gateway gmail.Gateway, executor *retry.Executor, cfg Config, logger *slog.Logger) *Engine {
	if cfg.FetchBatchSize <= 0 {
		cfg.FetchBatchSize = DefaultFetchBatchSize
	}
	if cfg.PacingDelay < 0 {
		cfg.PacingDelay = DefaultPacingDelay
	}
	if cfg.Concurrency <= 0 || cfg.Concurrency > cfg.FetchBatchSize {
		cfg.Concurrency = cfg.FetchBatchSize
	}
	return &Engine{
		gateway: gateway,
		retry:   executor,
		cfg:     cfg,
		logger:  logging.OrDiscard(logger),
		Sleep:   retry.SleepContext,
	}
}

// EffectiveFilter returns the query sent to the server.
func EffectiveFilter(filter string, includeSpamTrash bool) string {
	filter = strings.TrimSpace(filter)
	if includeSpamTrash {
		return filter
	}
	if filter == "" {
		return SpamTrashExclusion
	}
	return filter + " " + SpamTrashExclusion
}

// Search lists items matching the filter and fetches their metadata.
func (e *Engine) Search(ctx context.Context, req Request) (Result, error) {
	if req.MaxResults < 1 || req.MaxResults > MaxResultsLimit {
		return Result{}, fmt.Errorf("%w (got %d)", ErrInvalidMaxResults, req.MaxResults)
	}
	q := EffectiveFilter(req.Filter, req.IncludeSpamTrash)

	page, err := retry.Run(ctx, e.retry, func(ctx context.Context) (gmail.ListPage, error) {
		return e.gateway.List(ctx, q, int64(req.MaxResults), req.PageToken, req.IncludeSpamTrash)
	})
	if err != nil {
		return Result{}, err
	}

	refs := page.Items
	if len(refs) > req.MaxResults {
		refs = refs[:req.MaxResults]
	}
	res := Result{
		EstimatedTotal: page.EstimatedTotal,
		Continuation:   page.NextPageToken,
	}
	if len(refs) == 0 {
		res.Items = []gmail.ItemSummary{}
		return res, nil
	}

	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	res.Items, res.FetchErrors = e.fetchMetadata(ctx, ids)
	res.Dropped = len(ids) - len(res.Items)
	if res.Dropped > 0 {
		e.logger.Warn("dropped items whose metadata could not be fetched",
			logging.Count(res.Dropped))
	}
	return res, nil
}

// fetchMetadata fetches ids in batches. Members of a batch run concurrently;
// batches are separated by the pacing delay. Failed fetches are left out of
// the returned items, which keep the order of ids.
func (e *Engine) fetchMetadata(ctx context.Context, ids []string) ([]gmail.ItemSummary, []string) {
	slots := make([]*gmail.ItemSummary, len(ids))
	var (
		mu     sync.Mutex
		errMsg []string
	)

	chunks := batch.Chunk(ids, e.cfg.FetchBatchSize)
	offset := 0
	for bi, chunk := range chunks {
		var g errgroup.Group
		g.SetLimit(e.cfg.Concurrency)
		for i, id := range chunk {
			slot := offset + i
			g.Go(func() error {
				item, err := retry.Run(ctx, e.retry, func(ctx context.Context) (gmail.ItemSummary, error) {
					return e.gateway.Get(ctx, id, gmail.FormatMetadata)
				})
				if err != nil {
					mu.Lock()
					if len(errMsg) < maxReportedFetchErrors {
						errMsg = append(errMsg, fmt.Sprintf("%s: %v", id, err))
					}
					mu.Unlock()
					return nil
				}
				slots[slot] = &item
				return nil
			})
		}
		_ = g.Wait()
		offset += len(chunk)

		if bi < len(chunks)-1 && e.cfg.PacingDelay > 0 {
			if err := e.Sleep(ctx, e.cfg.PacingDelay); err != nil {
				break
			}
		}
	}

	items := make([]gmail.ItemSummary, 0, len(ids))
	for _, s := range slots {
		if s != nil {
			items = append(items, *s)
		}
	}
	return items, errMsg
}

// Count returns the server's estimate of how many items match. It is a
// one-item search and reads the list call's estimate; it is not exact.
func (e *Engine) Count(ctx context.Context, filter string, includeSpamTrash bool) (Estimate, error) {
	res, err := e.Search(ctx, Request{Filter: filter, MaxResults: 1, IncludeSpamTrash: includeSpamTrash})
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Value: res.EstimatedTotal}, nil
}

// Item fetches one item. includeBody escalates from metadata to the full
// MIME tree.
func (e *Engine) Item(ctx context.Context, id string, includeBody bool) (gmail.ItemSummary, error) {
	if strings.TrimSpace(id) == "" {
		return gmail.ItemSummary{}, errors.New("itemId is required")
	}
	format := gmail.FormatMetadata
	if includeBody {
		format = gmail.FormatFull
	}
	return retry.Run(ctx, e.retry, func(ctx context.Context) (gmail.ItemSummary, error) {
		return e.gateway.Get(ctx, id, format)
	})
}

// Labels lists the mailbox labels.
func (e *Engine) Labels(ctx context.Context) ([]gmail.Label, error) {
	return retry.Run(ctx, e.retry, func(ctx context.Context) ([]gmail.Label, error) {
		return e.gateway.ListLabels(ctx)
	})
}
