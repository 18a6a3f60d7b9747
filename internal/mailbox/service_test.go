package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/teemow/inboxprune/internal/audit"
	"github.com/teemow/inboxprune/internal/batch"
	"github.com/teemow/inboxprune/internal/deletion"
	"github.com/teemow/inboxprune/internal/gmail"
	"github.com/teemow/inboxprune/internal/gmail/gmailtest"
	"github.com/teemow/inboxprune/internal/query"
	"github.com/teemow/inboxprune/internal/retry"
	"github.com/teemow/inboxprune/internal/tickets"
	"github.com/teemow/inboxprune/internal/unsubscribe"
)

func noSleep(context.Context, time.Duration) error { return nil }

type brokenAudit struct{}

func (brokenAudit) Append(context.Context, audit.Record) (audit.Record, error) {
	return audit.Record{}, errors.New("audit unavailable")
}

func (brokenAudit) Read(context.Context) ([]audit.Record, error) { return nil, nil }

func newService(t *testing.T, fake *gmailtest.Fake, store audit.Store, readOnly, scopeOK bool) *Service {
	t.Helper()
	exec := retry.New(retry.Config{}, nil)
	exec.Sleep = noSleep
	engine := query.New(fake, exec, query.Config{}, nil)
	engine.Sleep = noSleep
	sched := batch.New(batch.Config{PacingDelay: 0}, nil)

	wf := deletion.New(deletion.Deps{
		Engine:    engine,
		Gateway:   fake,
		Retry:     exec,
		Scheduler: sched,
		Tickets:   tickets.NewMemoryStore(nil),
		Audit:     store,
	}, deletion.Config{ReadOnly: readOnly}, nil)

	return New(Options{
		Account:          "default",
		Engine:           engine,
		Workflow:         wf,
		Scanner:          unsubscribe.New(engine, nil, nil),
		Audit:            store,
		HasRequiredScope: scopeOK,
	}, nil)
}

func readAll(t *testing.T, s audit.Store) []audit.Record {
	t.Helper()
	rs, err := s.Read(context.Background())
	require.NoError(t, err)
	return rs
}

func TestSearchIsAudited(t *testing.T) {
	store := audit.NewMemoryStore()
	svc := newService(t, gmailtest.New(3), store, false, true)

	res, err := svc.Search(context.Background(), SearchRequest{Filter: "from:a"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)

	rs := readAll(t, store)
	require.Len(t, rs, 1)
	assert.Equal(t, audit.OpSearch, rs[0].Operation)
	assert.True(t, rs[0].Succeeded)
	require.NotNil(t, rs[0].Filter)
	assert.Equal(t, "from:a", *rs[0].Filter)
	assert.Equal(t, 3, *rs[0].ItemCount)
}

func TestSearchDefaultMaxResults(t *testing.T) {
	fake := gmailtest.New(1)
	svc := newService(t, fake, audit.NewMemoryStore(), false, true)
	_, err := svc.Search(context.Background(), SearchRequest{Filter: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultSearchResults), fake.ListCalls[0].MaxResults)
}

func TestSearchIsIdempotent(t *testing.T) {
	svc := newService(t, gmailtest.New(7), audit.NewMemoryStore(), false, true)
	first, err := svc.Search(context.Background(), SearchRequest{Filter: "x", MaxResults: 2})
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), SearchRequest{Filter: "x", MaxResults: 2})
	require.NoError(t, err)
	assert.Equal(t, first.EstimatedTotal, second.EstimatedTotal)
}

func TestFailedSearchIsAudited(t *testing.T) {
	fake := gmailtest.New(1)
	fake.ListErrs = []error{&googleapi.Error{Code: 404}}
	store := audit.NewMemoryStore()
	svc := newService(t, fake, store, false, true)

	_, err := svc.Search(context.Background(), SearchRequest{Filter: "x"})
	require.Error(t, err)
	rs := readAll(t, store)
	require.Len(t, rs, 1)
	assert.False(t, rs[0].Succeeded)
	assert.NotNil(t, rs[0].ErrorDetail)
}

func TestAuditFailureFailsCall(t *testing.T) {
	svc := newService(t, gmailtest.New(2), brokenAudit{}, false, true)

	_, err := svc.Search(context.Background(), SearchRequest{Filter: "x"})
	assert.ErrorContains(t, err, "audit unavailable")
	_, err = svc.Count(context.Background(), "x", false)
	assert.ErrorContains(t, err, "audit unavailable")
	_, err = svc.ScanUnsubscribe(context.Background(), "x", 10, true)
	assert.ErrorContains(t, err, "audit unavailable")
}

func TestCount(t *testing.T) {
	fake := gmailtest.New(2)
	estimate := int64(4200)
	fake.Estimate = &estimate
	store := audit.NewMemoryStore()
	svc := newService(t, fake, store, false, true)

	est, err := svc.Count(context.Background(), "older_than:1y", false)
	require.NoError(t, err)
	assert.Equal(t, int64(4200), est.Value)
	assert.False(t, est.Exact)
	assert.Contains(t, RenderCount("older_than:1y", est), "estimate")

	rs := readAll(t, store)
	require.Len(t, rs, 1)
	assert.Equal(t, audit.OpCount, rs[0].Operation)
	assert.Equal(t, 4200, *rs[0].ItemCount)
}

func TestPreviewWarnsWhenTruncated(t *testing.T) {
	fake := gmailtest.New(80)
	store := audit.NewMemoryStore()
	svc := newService(t, fake, store, false, true)

	p, err := svc.PreviewForDeletion(context.Background(), PreviewRequest{Filter: "x"})
	require.NoError(t, err)
	assert.Len(t, p.Items, DefaultPreviewResults)
	text := RenderPreview(p)
	assert.Contains(t, text, "Warning")
	assert.Contains(t, text, "80")
	assert.Zero(t, fake.DeleteCallCount())

	rs := readAll(t, store)
	require.Len(t, rs, 1)
	assert.Equal(t, audit.OpSearch, rs[0].Operation)
}

func TestPreviewFullHeaders(t *testing.T) {
	fake := &gmailtest.Fake{Messages: []gmail.ItemSummary{
		gmailtest.Message("m1", map[string]string{"From": "a@example.com", "X-Mailer": "list"}),
	}}
	svc := newService(t, fake, audit.NewMemoryStore(), false, true)
	p, err := svc.PreviewForDeletion(context.Background(), PreviewRequest{Filter: "x", ShowFullHeaders: true})
	require.NoError(t, err)
	text := RenderPreview(p)
	assert.Contains(t, text, "X-Mailer: list")
	assert.NotContains(t, text, "Warning")
}

func TestDeleteFlowThroughService(t *testing.T) {
	fake := gmailtest.New(4)
	store := audit.NewMemoryStore()
	svc := newService(t, fake, store, false, true)
	ctx := context.Background()

	issued := svc.Delete(ctx, deletion.Request{Filter: "x", DryRun: true, MaxDeletions: 10, RequireConfirmation: true})
	require.Equal(t, deletion.KindDryRunIssued, issued.Kind)
	text := RenderDeletion(issued)
	assert.Contains(t, text, issued.Ticket.Token)
	assert.Contains(t, text, "Nothing was deleted")

	done := svc.Delete(ctx, deletion.Request{Filter: "x", MaxDeletions: 10, RequireConfirmation: true, Token: issued.Ticket.Token})
	require.Equal(t, deletion.KindCompleted, done.Kind)
	assert.Equal(t, 4, done.DeletedCount)
	assert.Contains(t, RenderDeletion(done), "Deleted 4 item(s) in 1 batch(es)")

	rs := readAll(t, store)
	require.Len(t, rs, 2)
	assert.Equal(t, "default", rs[1].Account)
}

func TestDeleteWithoutScopeOnlyAllowsDryRun(t *testing.T) {
	fake := gmailtest.New(4)
	store := audit.NewMemoryStore()
	svc := newService(t, fake, store, false, false)
	assert.True(t, svc.ReadOnly())

	out := svc.Delete(context.Background(), deletion.Request{Filter: "x", MaxDeletions: 10})
	assert.Equal(t, deletion.KindRejected, out.Kind)
	assert.ErrorIs(t, out.Err, deletion.ErrReadOnly)
	assert.Empty(t, fake.ListCalls)
	assert.Len(t, readAll(t, store), 1)

	dry := svc.Delete(context.Background(), deletion.Request{Filter: "x", DryRun: true, MaxDeletions: 10})
	assert.Equal(t, deletion.KindDryRunIssued, dry.Kind)
}

func TestRenderDeletionOutcomes(t *testing.T) {
	tests := []struct {
		name string
		out  deletion.Outcome
		want string
	}{
		{
			name: "nothing matched",
			out:  deletion.Outcome{Kind: deletion.KindCompleted},
			want: "No items matched",
		},
		{
			name: "partial failure",
			out: deletion.Outcome{Kind: deletion.KindCompleted, DeletedCount: 50, FailedCount: 50, Batches: 2,
				Errors: []string{"batch 2/2 (50 items): boom"}},
			want: "50 item(s) failed",
		},
		{
			name: "limit",
			out: deletion.Outcome{Kind: deletion.KindRejected,
				Err: &deletion.PolicyError{Code: deletion.CodeLimitExceeded, Message: "filter matches 120 items"}},
			want: "limit_exceeded: filter matches 120 items",
		},
		{
			name: "confirmation",
			out: deletion.Outcome{Kind: deletion.KindConfirmationRequired, EstimatedTotal: 12, Matched: 12,
				Err: &deletion.PolicyError{Code: deletion.CodeConfirmationRequired, Message: "12 items match"}},
			want: "Total matching: 12",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, RenderDeletion(tt.out), tt.want)
		})
	}
}

func TestScanUnsubscribe(t *testing.T) {
	fake := &gmailtest.Fake{Messages: []gmail.ItemSummary{
		gmailtest.Message("m1", map[string]string{"List-Unsubscribe": "<https://a.example/u1>, <https://b.example/u2>"}),
		gmailtest.Message("m2", map[string]string{"List-Unsubscribe": "<https://a.example/u1>"}),
	}}
	store := audit.NewMemoryStore()
	svc := newService(t, fake, store, false, true)

	res, err := svc.ScanUnsubscribe(context.Background(), "x", 0, true)
	require.NoError(t, err)
	require.Len(t, res.Links, 2)
	text := RenderUnsubscribe(res, true)
	assert.Contains(t, text, "https://a.example/u1")
	assert.Contains(t, text, TrustNote)
	assert.NotContains(t, RenderUnsubscribe(res, false), "heuristic")

	rs := readAll(t, store)
	require.Len(t, rs, 1)
	assert.Equal(t, audit.OpUnsubscribeScan, rs[0].Operation)
	assert.Equal(t, 2, *rs[0].ItemCount)
}

func TestItemDetails(t *testing.T) {
	fake := gmailtest.New(1)
	fake.Messages[0].Payload.Body = []byte("hello there")
	svc := newService(t, fake, audit.NewMemoryStore(), false, true)

	it, err := svc.ItemDetails(context.Background(), "m1", true)
	require.NoError(t, err)
	text := RenderItem(it, true, true)
	assert.Contains(t, text, "ID: m1")
	assert.Contains(t, text, "hello there")

	_, err = svc.ItemDetails(context.Background(), "missing", false)
	assert.ErrorIs(t, err, gmail.ErrNotFound)
}

func TestListLabels(t *testing.T) {
	fake := gmailtest.New(0)
	fake.Labels = []gmail.Label{
		{ID: "INBOX", Name: "INBOX", Type: "system"},
		{ID: "Label_1", Name: "Receipts", Type: "user", MessagesTotal: 3},
	}
	svc := newService(t, fake, audit.NewMemoryStore(), false, true)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter LabelFilter
		want   []string
	}{
		{"both", LabelFilter{IncludeSystem: true, IncludeUser: true}, []string{"INBOX", "Label_1"}},
		{"system only", LabelFilter{IncludeSystem: true}, []string{"INBOX"}},
		{"user only", LabelFilter{IncludeUser: true}, []string{"Label_1"}},
		{"neither", LabelFilter{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, err := svc.ListLabels(ctx, tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, l := range labels {
				ids = append(ids, l.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
	assert.Contains(t, RenderLabels(fake.Labels), "Receipts (id: Label_1, type: user, messages: 3")
}
