// Package mailbox is the transport-independent tool surface for one Gmail
// account. Each method maps to one MCP tool; the Render functions turn the
// results into the plain text the tools return.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxprune/internal/audit"
	"github.com/teemow/inboxprune/internal/deletion"
	"github.com/teemow/inboxprune/internal/gmail"
	"github.com/teemow/inboxprune/internal/logging"
	"github.com/teemow/inboxprune/internal/query"
	"github.com/teemow/inboxprune/internal/unsubscribe"
)

// Tool defaults.
const (
	DefaultSearchResults  = 100
	DefaultPreviewResults = 50
	DefaultScanResults    = unsubscribe.DefaultMaxResults
)

// SearchRequest is a gmail_search invocation.
type SearchRequest struct {
	Filter           string
	MaxResults       int
	IncludeSpamTrash bool
	PageToken        string
}

// PreviewRequest is a gmail_preview_deletion invocation.
type PreviewRequest struct {
	Filter           string
	MaxResults       int
	IncludeSpamTrash bool
	ShowFullHeaders  bool
}

// LabelFilter selects label types.
type LabelFilter struct {
	IncludeSystem bool
	IncludeUser   bool
}

// Service runs tool operations against one account.
type Service struct {
	account  string
	engine   *query.Engine
	workflow *deletion.Workflow
	scanner  *unsubscribe.Scanner
	audit    audit.Store
	logger   *slog.Logger
	readOnly bool
	scopeOK  bool

	// Now stamps audit records.
	Now func() time.Time
}

// Options assembles a Service.
type Options struct {
	Account  string
	Engine   *query.Engine
	Workflow *deletion.Workflow
	Scanner  *unsubscribe.Scanner
	Audit    audit.Store
	// HasRequiredScope is false when the credential cannot delete.
	HasRequiredScope bool
}

// New returns a Service.
func New(opts Options, logger *slog.Logger) *Service {
	return &Service{
		account:  opts.Account,
		engine:   opts.Engine,
		workflow: opts.Workflow,
		scanner:  opts.Scanner,
		audit:    opts.Audit,
		logger:   logging.WithAccount(logging.OrDiscard(logger), opts.Account),
		readOnly: opts.Workflow != nil && opts.Workflow.ReadOnly(),
		scopeOK:  opts.HasRequiredScope,
		Now:      time.Now,
	}
}

// Account returns the account name the service was built for.
func (s *Service) Account() string {
	return s.account
}

// ReadOnly reports whether deletes are limited to dry runs.
func (s *Service) ReadOnly() bool {
	return s.readOnly || !s.scopeOK
}

// record appends an audit record for a non-delete operation. The caller's
// result is only returned once this succeeds.
func (s *Service) record(ctx context.Context, rec audit.Record) error {
	if _, err := s.audit.Append(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("failed to persist audit record",
			logging.Operation(string(rec.Operation)),
			logging.Err(err))
		return fmt.Errorf("failed to persist audit record: %w", err)
	}
	return nil
}

// Search runs a filter and returns matching items.
func (s *Service) Search(ctx context.Context, req SearchRequest) (query.Result, error) {
	if req.MaxResults == 0 {
		req.MaxResults = DefaultSearchResults
	}
	rec := audit.NewRecord(s.Now(), audit.OpSearch, s.account, req.Filter)
	res, err := s.engine.Search(ctx, query.Request{
		Filter:           req.Filter,
		MaxResults:       req.MaxResults,
		IncludeSpamTrash: req.IncludeSpamTrash,
		PageToken:        req.PageToken,
	})
	if err == nil {
		rec = rec.WithCount(len(res.Items))
	}
	if aerr := s.record(ctx, rec.Outcome(err)); aerr != nil {
		return query.Result{}, aerr
	}
	return res, err
}

// Count returns the server's estimate for a filter.
func (s *Service) Count(ctx context.Context, filter string, includeSpamTrash bool) (query.Estimate, error) {
	rec := audit.NewRecord(s.Now(), audit.OpCount, s.account, filter)
	est, err := s.engine.Count(ctx, filter, includeSpamTrash)
	if err == nil {
		rec = rec.WithCount(int(est.Value))
	}
	if aerr := s.record(ctx, rec.Outcome(err)); aerr != nil {
		return query.Estimate{}, aerr
	}
	return est, err
}

// Preview is the result of PreviewForDeletion.
type Preview struct {
	query.Result
	ShowFullHeaders bool
}

// PreviewForDeletion lists what a delete with the same filter would match.
// It is audited as a search and never mutates.
func (s *Service) PreviewForDeletion(ctx context.Context, req PreviewRequest) (Preview, error) {
	if req.MaxResults == 0 {
		req.MaxResults = DefaultPreviewResults
	}
	res, err := s.Search(ctx, SearchRequest{
		Filter:           req.Filter,
		MaxResults:       req.MaxResults,
		IncludeSpamTrash: req.IncludeSpamTrash,
	})
	if err != nil {
		return Preview{}, err
	}
	return Preview{Result: res, ShowFullHeaders: req.ShowFullHeaders}, nil
}

// Delete runs the guarded delete workflow for this account. A credential
// without the full mail scope only allows dry runs.
func (s *Service) Delete(ctx context.Context, req deletion.Request) deletion.Outcome {
	req.Account = s.account
	if !req.DryRun && !s.scopeOK {
		out := deletion.Outcome{
			Kind:         deletion.KindRejected,
			MaxDeletions: req.MaxDeletions,
			Err: &deletion.PolicyError{
				Code:    deletion.CodeReadOnly,
				Message: "the credential for this account lacks the full mail scope; re-authenticate to delete",
			},
		}
		rec := audit.NewRecord(s.Now(), audit.OpDelete, s.account, req.Filter).Outcome(out.Err)
		if err := s.record(ctx, rec); err != nil {
			out.Kind = deletion.KindFailed
			out.Err = err
		}
		return out
	}
	return s.workflow.Delete(ctx, req)
}

// ItemDetails fetches one item, escalating to the full MIME tree when the
// body is requested.
func (s *Service) ItemDetails(ctx context.Context, id string, includeBody bool) (gmail.ItemSummary, error) {
	return s.engine.Item(ctx, id, includeBody)
}

// ScanUnsubscribe collects unsubscribe links from matching items.
func (s *Service) ScanUnsubscribe(ctx context.Context, filter string, maxResults int, verifyTrust bool) (unsubscribe.Result, error) {
	rec := audit.NewRecord(s.Now(), audit.OpUnsubscribeScan, s.account, filter)
	res, err := s.scanner.Scan(ctx, filter, maxResults, verifyTrust)
	if err == nil {
		rec = rec.WithCount(len(res.Links))
	}
	if aerr := s.record(ctx, rec.Outcome(err)); aerr != nil {
		return unsubscribe.Result{}, aerr
	}
	return res, err
}

// ListLabels returns the labels selected by f.
func (s *Service) ListLabels(ctx context.Context, f LabelFilter) ([]gmail.Label, error) {
	labels, err := s.engine.Labels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]gmail.Label, 0, len(labels))
	for _, l := range labels {
		if l.IsSystem() && !f.IncludeSystem {
			continue
		}
		if !l.IsSystem() && !f.IncludeUser {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
