// Package gmailtest provides an in-memory gmail.Gateway for tests.
package gmailtest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/teemow/inboxprune/internal/gmail"
)

// ListCall records the arguments of one List call.
type ListCall struct {
	Query            string
	MaxResults       int64
	PageToken        string
	IncludeSpamTrash bool
}

// Fake is a mailbox held in memory. Fields may be set before use; calls are
// recorded for assertions. It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	// Messages is the mailbox in list order.
	Messages []gmail.ItemSummary
	Labels   []gmail.Label
	// Match filters Messages for a query; nil matches everything.
	Match func(query string, item gmail.ItemSummary) bool
	// Estimate, when non-nil, replaces the computed resultSizeEstimate.
	Estimate *int64

	// ListErrs are returned by successive List calls, one per call.
	ListErrs []error
	// GetErrs fail Get for specific ids on every call.
	GetErrs map[string]error
	// DeleteErr decides the result of the n-th (0-based) BatchDelete call.
	DeleteErr func(call int, ids []string) error
	LabelsErr error

	ListCalls   []ListCall
	GetCalls    []string
	DeleteCalls [][]string
}

var _ gmail.Gateway = (*Fake)(nil)

// New returns a Fake holding n messages with ids m1..mn.
func New(n int) *Fake {
	f := &Fake{}
	for i := 1; i <= n; i++ {
		f.Messages = append(f.Messages, Message(fmt.Sprintf("m%d", i), nil))
	}
	return f
}

// Message builds an ItemSummary with the given top-level headers.
func Message(id string, headers map[string]string) gmail.ItemSummary {
	part := &gmail.Part{MimeType: "text/plain"}
	copied := map[string]string{}
	for name, value := range headers {
		part.Headers = append(part.Headers, gmail.Header{Name: name, Value: value})
		copied[name] = value
	}
	return gmail.ItemSummary{
		ID:       id,
		ThreadID: "t-" + id,
		Snippet:  "snippet " + id,
		Headers:  copied,
		Payload:  part,
	}
}

func (f *Fake) matching(query string) []gmail.ItemSummary {
	var out []gmail.ItemSummary
	for _, m := range f.Messages {
		if f.Match == nil || f.Match(query, m) {
			out = append(out, m)
		}
	}
	return out
}

func (f *Fake) List(_ context.Context, query string, maxResults int64, pageToken string, includeSpamTrash bool) (gmail.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListCalls = append(f.ListCalls, ListCall{
		Query:            query,
		MaxResults:       maxResults,
		PageToken:        pageToken,
		IncludeSpamTrash: includeSpamTrash,
	})
	if len(f.ListErrs) > 0 {
		err := f.ListErrs[0]
		f.ListErrs = f.ListErrs[1:]
		if err != nil {
			return gmail.ListPage{}, err
		}
	}

	all := f.matching(query)
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return gmail.ListPage{}, fmt.Errorf("bad page token %q", pageToken)
		}
		offset = n
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + int(maxResults)
	if end > len(all) {
		end = len(all)
	}

	page := gmail.ListPage{EstimatedTotal: int64(len(all))}
	if f.Estimate != nil {
		page.EstimatedTotal = *f.Estimate
	}
	for _, m := range all[offset:end] {
		page.Items = append(page.Items, gmail.ItemRef{ID: m.ID, ThreadID: m.ThreadID})
	}
	if end < len(all) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (f *Fake) Get(_ context.Context, id string, _ gmail.Format) (gmail.ItemSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.GetCalls = append(f.GetCalls, id)
	if err := f.GetErrs[id]; err != nil {
		return gmail.ItemSummary{}, err
	}
	for _, m := range f.Messages {
		if m.ID == id {
			return m, nil
		}
	}
	return gmail.ItemSummary{}, fmt.Errorf("message %s: %w", id, gmail.ErrNotFound)
}

func (f *Fake) BatchDelete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := len(f.DeleteCalls)
	f.DeleteCalls = append(f.DeleteCalls, append([]string(nil), ids...))
	if f.DeleteErr != nil {
		if err := f.DeleteErr(call, ids); err != nil {
			return err
		}
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.Messages[:0]
	for _, m := range f.Messages {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	f.Messages = kept
	return nil
}

func (f *Fake) ListLabels(context.Context) ([]gmail.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LabelsErr != nil {
		return nil, f.LabelsErr
	}
	return append([]gmail.Label(nil), f.Labels...), nil
}

// Deleted returns the ids passed to BatchDelete, flattened in call order.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, call := range f.DeleteCalls {
		out = append(out, call...)
	}
	return out
}

// DeleteCallCount returns how many times BatchDelete was called.
func (f *Fake) DeleteCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DeleteCalls)
}
