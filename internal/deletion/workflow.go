package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/inboxprune/internal/audit"
	"github.com/teemow/inboxprune/internal/batch"
	"github.com/teemow/inboxprune/internal/gmail"
	"github.com/teemow/inboxprune/internal/logging"
	"github.com/teemow/inboxprune/internal/query"
	"github.com/teemow/inboxprune/internal/retry"
	"github.com/teemow/inboxprune/internal/tickets"
)

const (
	// DefaultMaxDeletions is the limit used when a request sets none.
	DefaultMaxDeletions = 100
	// MaxDeletionsLimit keeps the limit-check search within one page.
	MaxDeletionsLimit = query.MaxResultsLimit - 1
	// PreviewSize is how many items a confirmation-required outcome shows.
	PreviewSize = 5
)

// Kind is the terminal state of a Delete request.
type Kind string

const (
	KindRejected             Kind = "rejected"
	KindDryRunIssued         Kind = "dry_run_issued"
	KindConfirmationRequired Kind = "confirmation_required"
	KindCompleted            Kind = "completed"
	KindFailed               Kind = "failed"
)

// Request is a delete invocation.
type Request struct {
	Account             string
	Filter              string
	DryRun              bool
	MaxDeletions        int
	RequireConfirmation bool
	IncludeSpamTrash    bool
	// Token redeems a ticket issued by an earlier dry run.
	Token string
}

// Outcome is the result of Delete. Callers branch on Kind; Err carries the
// policy or gateway error for Rejected, ConfirmationRequired and Failed.
type Outcome struct {
	Kind         Kind
	DeletedCount int
	FailedCount  int
	Errors       []string
	Batches      int

	// Ticket is set for DryRunIssued.
	Ticket *tickets.Ticket
	// EstimatedTotal is the server estimate for the filter.
	EstimatedTotal int64
	// Matched is how many items the search returned.
	Matched      int
	Dropped      int
	MaxDeletions int
	// Preview holds up to PreviewSize matched items.
	Preview []gmail.ItemSummary

	Err error
}

// Policy returns the policy error carried by the outcome, if any.
func (o Outcome) Policy() (*PolicyError, bool) {
	var pe *PolicyError
	if errors.As(o.Err, &pe) {
		return pe, true
	}
	return nil, false
}

// Metrics receives workflow events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordPolicyRejection(ctx context.Context, code string)
	RecordTicketEvent(ctx context.Context, event string)
	RecordDeletedItems(ctx context.Context, deleted, failed int)
}

type noopMetrics struct{}

func (noopMetrics) RecordPolicyRejection(context.Context, string) {}
func (noopMetrics) RecordTicketEvent(context.Context, string)     {}
func (noopMetrics) RecordDeletedItems(context.Context, int, int)  {}

// Ticket events passed to Metrics.RecordTicketEvent.
const (
	TicketIssued   = "issued"
	TicketRedeemed = "redeemed"
	TicketRejected = "rejected"
)

// Deps are the collaborators of a Workflow.
type Deps struct {
	Engine    *query.Engine
	Gateway   gmail.Gateway
	Retry     *retry.Executor
	Scheduler *batch.Scheduler
	Tickets   tickets.Store
	Audit     audit.Store
}

// Config tunes a Workflow.
type Config struct {
	// TicketTTL is how long a dry-run ticket stays redeemable.
	TicketTTL time.Duration
	// ReadOnly rejects every request that is not a dry run.
	ReadOnly bool
	// DefaultMaxDeletions replaces a zero Request.MaxDeletions.
	DefaultMaxDeletions int
}

// Workflow runs guarded deletes for one mailbox.
type Workflow struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	// Now is the clock used for tickets and audit records.
	Now     func() time.Time
	Metrics Metrics
}

// New returns a Workflow.
func New(deps Deps, cfg Config, logger *slog.Logger) *Workflow {
	if cfg.TicketTTL <= 0 {
		cfg.TicketTTL = tickets.DefaultTTL
	}
	if cfg.DefaultMaxDeletions <= 0 {
		cfg.DefaultMaxDeletions = DefaultMaxDeletions
	}
	return &Workflow{
		deps:    deps,
		cfg:     cfg,
		logger:  logging.WithOperation(logging.OrDiscard(logger), "deletion"),
		Now:     time.Now,
		Metrics: noopMetrics{},
	}
}

// ReadOnly reports whether non-dry-run requests are rejected.
func (w *Workflow) ReadOnly() bool {
	return w.cfg.ReadOnly
}

// Delete runs one request to a terminal state and records it in the audit
// log. If the audit record cannot be persisted the outcome is Failed, even
// when items were already deleted.
func (w *Workflow) Delete(ctx context.Context, req Request) Outcome {
	started := w.Now()
	out := w.run(ctx, req)

	// The record is written even if the caller went away mid-request.
	auditCtx := context.WithoutCancel(ctx)
	rec := auditRecord(started, req, out)
	if _, err := w.deps.Audit.Append(auditCtx, rec); err != nil {
		w.logger.Error("failed to persist audit record", logging.Err(err))
		if out.Ticket != nil {
			if _, derr := w.deps.Tickets.Delete(auditCtx, out.Ticket.Token); derr != nil {
				w.logger.Warn("failed to withdraw ticket", logging.Err(derr))
			}
			out.Ticket = nil
		}
		out.Kind = KindFailed
		out.Err = fmt.Errorf("failed to persist audit record: %w", err)
		return out
	}

	w.logOutcome(req, out)
	return out
}

func (w *Workflow) run(ctx context.Context, req Request) Outcome {
	if req.MaxDeletions == 0 {
		req.MaxDeletions = w.cfg.DefaultMaxDeletions
	}
	out := Outcome{MaxDeletions: req.MaxDeletions}

	if strings.TrimSpace(req.Filter) == "" {
		return w.fail(ctx, out, policyf(CodeInvalidArgument, "filter is required"))
	}
	if req.MaxDeletions < 1 || req.MaxDeletions > MaxDeletionsLimit {
		return w.fail(ctx, out, policyf(CodeInvalidArgument,
			"maxDeletions must be between 1 and %d (got %d)", MaxDeletionsLimit, req.MaxDeletions))
	}
	if !req.DryRun && w.cfg.ReadOnly {
		return w.reject(ctx, out, policyf(CodeReadOnly,
			"deletes are disabled; run with dryRun=true or start the server with --yolo"))
	}

	// Requested -> Counted
	res, err := w.deps.Engine.Search(ctx, query.Request{
		Filter:           req.Filter,
		MaxResults:       req.MaxDeletions + 1,
		IncludeSpamTrash: req.IncludeSpamTrash,
	})
	if err != nil {
		out.Kind = KindFailed
		out.Err = fmt.Errorf("failed to count matching items: %w", err)
		return out
	}
	out.EstimatedTotal = res.EstimatedTotal
	out.Matched = len(res.Items)
	out.Dropped = res.Dropped

	if out.Matched == 0 {
		// A token must still be valid when nothing matches any more, as in
		// a replay after the first redemption emptied the filter.
		if !req.DryRun && req.Token != "" {
			if _, stop := w.consume(ctx, req, out); stop != nil {
				return *stop
			}
		}
		if out.Dropped > 0 {
			out.Kind = KindFailed
			out.Err = fmt.Errorf("failed to fetch any of %d matching items: %s",
				out.Dropped, strings.Join(res.FetchErrors, "; "))
			return out
		}
		out.Kind = KindCompleted
		return out
	}

	matched := int64(out.Matched + out.Dropped)
	if total := max(res.EstimatedTotal, matched); total > int64(req.MaxDeletions) {
		return w.reject(ctx, out, policyf(CodeLimitExceeded,
			"filter matches %d items, which exceeds maxDeletions of %d; narrow the filter or raise maxDeletions",
			total, req.MaxDeletions))
	}

	if req.DryRun {
		t := tickets.New(w.Now(), w.cfg.TicketTTL, req.Account, req.Filter, res.IDs())
		if err := w.deps.Tickets.Put(ctx, t); err != nil {
			out.Kind = KindFailed
			out.Err = fmt.Errorf("failed to store confirmation ticket: %w", err)
			return out
		}
		w.Metrics.RecordTicketEvent(ctx, TicketIssued)
		out.Kind = KindDryRunIssued
		out.Ticket = &t
		out.Preview = preview(res.Items)
		return out
	}

	ids := res.IDs()
	if req.Token != "" {
		t, stop := w.consume(ctx, req, out)
		if stop != nil {
			return *stop
		}
		ids = t.ItemIDs
		if len(ids) > req.MaxDeletions {
			return w.reject(ctx, out, policyf(CodeLimitExceeded,
				"ticket covers %d items, which exceeds maxDeletions of %d", len(ids), req.MaxDeletions))
		}
	} else if req.RequireConfirmation {
		out.Kind = KindConfirmationRequired
		out.Preview = preview(res.Items)
		out.Err = policyf(CodeConfirmationRequired,
			"%d items match; run with dryRun=true and pass the returned confirmationToken to delete them",
			max(res.EstimatedTotal, matched))
		w.Metrics.RecordPolicyRejection(ctx, string(CodeConfirmationRequired))
		return out
	}

	return w.execute(ctx, out, ids)
}

// consume redeems the request's ticket. When redemption fails it returns
// the terminal outcome instead.
func (w *Workflow) consume(ctx context.Context, req Request, out Outcome) (tickets.Ticket, *Outcome) {
	t, perr, err := w.redeem(ctx, req)
	if err != nil {
		out.Kind = KindFailed
		out.Err = err
		return tickets.Ticket{}, &out
	}
	if perr != nil {
		w.Metrics.RecordTicketEvent(ctx, TicketRejected)
		rejected := w.reject(ctx, out, perr)
		return tickets.Ticket{}, &rejected
	}
	w.Metrics.RecordTicketEvent(ctx, TicketRedeemed)
	return t, nil
}

// redeem validates and consumes the request's ticket. A policy failure is
// returned as the second value; the error is reserved for store failures.
func (w *Workflow) redeem(ctx context.Context, req Request) (tickets.Ticket, *PolicyError, error) {
	t, ok, err := w.deps.Tickets.Get(ctx, req.Token)
	if err != nil {
		return tickets.Ticket{}, nil, fmt.Errorf("failed to load confirmation ticket: %w", err)
	}
	if !ok {
		// Stores forget expired tickets after their grace window, so a token
		// that old reads as unknown rather than expired.
		return tickets.Ticket{}, policyf(CodeInvalidTicket,
			"confirmation token is unknown, already used or long expired; run a new dry run"), nil
	}
	if t.Expired(w.Now()) {
		if _, err := w.deps.Tickets.Delete(ctx, t.Token); err != nil {
			w.logger.Warn("failed to evict expired ticket", logging.Err(err))
		}
		return tickets.Ticket{}, policyf(CodeExpiredTicket,
			"confirmation token expired at %s; run a new dry run", t.ExpiresAt.UTC().Format(time.RFC3339)), nil
	}
	if t.Filter != req.Filter {
		return tickets.Ticket{}, policyf(CodeInvalidTicket, "confirmation token was issued for a different filter"), nil
	}
	if t.Account != req.Account {
		return tickets.Ticket{}, policyf(CodeInvalidTicket, "confirmation token was issued for a different account"), nil
	}

	removed, err := w.deps.Tickets.Delete(ctx, t.Token)
	if err != nil {
		return tickets.Ticket{}, nil, fmt.Errorf("failed to consume confirmation ticket: %w", err)
	}
	if !removed {
		return tickets.Ticket{}, policyf(CodeInvalidTicket, "confirmation token is unknown or already used"), nil
	}
	return t, nil, nil
}

// execute deletes ids in paced batches. It is not interrupted by the
// caller's cancellation once started.
func (w *Workflow) execute(ctx context.Context, out Outcome, ids []string) Outcome {
	ctx = context.WithoutCancel(ctx)
	run := w.deps.Scheduler.Run(ctx, ids, func(ctx context.Context, chunk []string) error {
		return w.deps.Retry.Do(ctx, func(ctx context.Context) error {
			return w.deps.Gateway.BatchDelete(ctx, chunk)
		})
	})
	out.Kind = KindCompleted
	out.DeletedCount = run.DeletedCount
	out.FailedCount = run.FailedCount
	out.Errors = run.Errors
	out.Batches = run.Batches()
	w.Metrics.RecordDeletedItems(ctx, run.DeletedCount, run.FailedCount)
	return out
}

func (w *Workflow) reject(ctx context.Context, out Outcome, perr *PolicyError) Outcome {
	out.Kind = KindRejected
	out.Err = perr
	w.Metrics.RecordPolicyRejection(ctx, string(perr.Code))
	return out
}

func (w *Workflow) fail(ctx context.Context, out Outcome, perr *PolicyError) Outcome {
	out.Kind = KindFailed
	out.Err = perr
	w.Metrics.RecordPolicyRejection(ctx, string(perr.Code))
	return out
}

func (w *Workflow) logOutcome(req Request, out Outcome) {
	attrs := []any{
		logging.Account(req.Account),
		slog.String("kind", string(out.Kind)),
		slog.Bool("dry_run", req.DryRun),
		slog.Int64("estimated_total", out.EstimatedTotal),
		slog.Int("deleted", out.DeletedCount),
		slog.Int("failed", out.FailedCount),
	}
	switch {
	case out.Kind == KindFailed:
		w.logger.Error("delete failed", append(attrs, logging.Err(out.Err))...)
	case out.Err != nil:
		w.logger.Info("delete stopped by policy", append(attrs, logging.Err(out.Err))...)
	case out.FailedCount > 0:
		w.logger.Warn("delete completed with failures", attrs...)
	default:
		w.logger.Info("delete finished", attrs...)
	}
}

func preview(items []gmail.ItemSummary) []gmail.ItemSummary {
	if len(items) > PreviewSize {
		items = items[:PreviewSize]
	}
	return append([]gmail.ItemSummary(nil), items...)
}

func auditRecord(started time.Time, req Request, out Outcome) audit.Record {
	rec := audit.NewRecord(started, audit.OpDelete, req.Account, req.Filter).WithDryRun(req.DryRun)

	switch out.Kind {
	case KindCompleted:
		rec = rec.WithCount(out.DeletedCount)
		if out.FailedCount > 0 {
			return rec.Failure(fmt.Sprintf("%d items failed: %s", out.FailedCount, strings.Join(out.Errors, "; ")))
		}
		return rec.Success()
	case KindDryRunIssued:
		return rec.WithCount(out.Matched).Success()
	}

	if out.Matched > 0 || out.EstimatedTotal > 0 {
		rec = rec.WithCount(int(max(out.EstimatedTotal, int64(out.Matched+out.Dropped))))
	}
	return rec.Outcome(out.Err)
}
