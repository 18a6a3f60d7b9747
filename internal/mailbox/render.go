package mailbox

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teemow/inboxprune/internal/deletion"
	"github.com/teemow/inboxprune/internal/gmail"
	"github.com/teemow/inboxprune/internal/query"
	"github.com/teemow/inboxprune/internal/unsubscribe"
)

// TrustNote accompanies every scan that marks links as trusted.
const TrustNote = "Note: \"trusted\" only means the link's domain matches a list of well-known senders. " +
	"It is a heuristic, not a guarantee that the link is safe."

const dateLayout = "2006-01-02 15:04"

func writeItemLine(b *strings.Builder, i int, it gmail.ItemSummary) {
	fmt.Fprintf(b, "%d. %s | From: %s | Subject: %s", i+1, it.ID, it.Header("From"), it.Header("Subject"))
	if !it.InternalDate.IsZero() {
		fmt.Fprintf(b, " | %s", it.InternalDate.UTC().Format(dateLayout))
	}
	b.WriteString("\n")
}

func writeFetchNotes(b *strings.Builder, res query.Result) {
	if res.Dropped == 0 {
		return
	}
	fmt.Fprintf(b, "\nWarning: metadata for %d matching item(s) could not be fetched and is not listed.\n", res.Dropped)
	for _, e := range res.FetchErrors {
		fmt.Fprintf(b, "  - %s\n", e)
	}
}

// RenderSearch formats a search result.
func RenderSearch(res query.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d item(s) (estimated total: %d)\n", len(res.Items), res.EstimatedTotal)
	for i, it := range res.Items {
		writeItemLine(&b, i, it)
	}
	if res.Continuation != "" {
		fmt.Fprintf(&b, "\nMore results available. Next page token: %s\n", res.Continuation)
	}
	writeFetchNotes(&b, res)
	return b.String()
}

// RenderCount formats a count estimate.
func RenderCount(filter string, est query.Estimate) string {
	if est.Exact {
		return fmt.Sprintf("%d items match %q.", est.Value, filter)
	}
	return fmt.Sprintf("Approximately %d items match %q. This is the server's estimate, not an exact count.", est.Value, filter)
}

// RenderPreview formats a deletion preview.
func RenderPreview(p Preview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deletion preview: %d item(s) shown, estimated total %d. Nothing has been deleted.\n\n",
		len(p.Items), p.EstimatedTotal)
	for i, it := range p.Items {
		writeItemLine(&b, i, it)
		if p.ShowFullHeaders {
			names := make([]string, 0, len(it.Headers))
			for name := range it.Headers {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(&b, "   %s: %s\n", name, it.Headers[name])
			}
		}
	}
	if p.Truncated() {
		fmt.Fprintf(&b, "\nWarning: the filter matches about %d items but only %d are shown. "+
			"A delete with this filter would affect items not listed here.\n", p.EstimatedTotal, len(p.Items))
	}
	writeFetchNotes(&b, p.Result)
	return b.String()
}

// RenderDeletion formats a delete outcome.
func RenderDeletion(out deletion.Outcome) string {
	var b strings.Builder
	switch out.Kind {
	case deletion.KindCompleted:
		if out.DeletedCount == 0 && out.FailedCount == 0 {
			b.WriteString("No items matched the filter. Nothing was deleted.\n")
			break
		}
		fmt.Fprintf(&b, "Deleted %d item(s) in %d batch(es).", out.DeletedCount, out.Batches)
		if out.FailedCount > 0 {
			fmt.Fprintf(&b, " %d item(s) failed.", out.FailedCount)
		}
		b.WriteString("\n")
		for _, e := range out.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	case deletion.KindDryRunIssued:
		fmt.Fprintf(&b, "Dry run: %d item(s) would be deleted (estimated total %d). Nothing was deleted.\n\n",
			out.Matched, out.EstimatedTotal)
		for i, it := range out.Preview {
			writeItemLine(&b, i, it)
		}
		if out.Matched > len(out.Preview) {
			fmt.Fprintf(&b, "... and %d more\n", out.Matched-len(out.Preview))
		}
		if out.Ticket != nil {
			fmt.Fprintf(&b, "\nConfirmation token: %s\nValid until: %s\n",
				out.Ticket.Token, out.Ticket.ExpiresAt.UTC().Format(time.RFC3339))
			b.WriteString("To delete exactly these items, call gmail_delete again with the same filter, " +
				"dryRun=false and this confirmationToken. The token can be used once.\n")
		}
	case deletion.KindConfirmationRequired:
		fmt.Fprintf(&b, "%s\n\n", out.Err)
		for i, it := range out.Preview {
			writeItemLine(&b, i, it)
		}
		fmt.Fprintf(&b, "\nTotal matching: %d\n", max(out.EstimatedTotal, int64(out.Matched)))
	default:
		if out.Err != nil {
			fmt.Fprintf(&b, "%s\n", out.Err)
		}
	}
	if out.Dropped > 0 {
		fmt.Fprintf(&b, "\nWarning: %d matching item(s) could not be fetched and were not included.\n", out.Dropped)
	}
	return b.String()
}

// RenderItem formats one item.
func RenderItem(it gmail.ItemSummary, includeHeaders, includeBody bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\nThread: %s\n", it.ID, it.ThreadID)
	if !it.InternalDate.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", it.InternalDate.UTC().Format(time.RFC3339))
	}
	if len(it.LabelIDs) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(it.LabelIDs, ", "))
	}
	fmt.Fprintf(&b, "Snippet: %s\n", it.Snippet)
	if includeHeaders && it.Payload != nil {
		b.WriteString("\nHeaders:\n")
		for _, h := range it.Payload.Headers {
			fmt.Fprintf(&b, "  %s: %s\n", h.Name, h.Value)
		}
	}
	if includeBody {
		body := gmail.PlainText(it.Payload)
		if body == "" {
			b.WriteString("\nBody: (no text body)\n")
		} else {
			fmt.Fprintf(&b, "\nBody:\n%s\n", body)
		}
	}
	return b.String()
}

// RenderUnsubscribe formats a scan result.
func RenderUnsubscribe(res unsubscribe.Result, verifyTrust bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scanned %d item(s), found %d unique unsubscribe link(s).\n\n", res.Scanned, len(res.Links))
	for i, l := range res.Links {
		fmt.Fprintf(&b, "%d. %s %s (origin: %s, message: %s", i+1, l.Method, l.URL, l.Origin, l.MessageID)
		if verifyTrust {
			fmt.Fprintf(&b, ", trusted: %t", l.Trusted)
		}
		b.WriteString(")\n")
	}
	if res.Dropped > 0 {
		fmt.Fprintf(&b, "\nWarning: %d matching item(s) could not be fetched and were not scanned.\n", res.Dropped)
	}
	if verifyTrust {
		fmt.Fprintf(&b, "\n%s\n", TrustNote)
	}
	return b.String()
}

// RenderLabels formats a label list.
func RenderLabels(labels []gmail.Label) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d label(s):\n", len(labels))
	for _, l := range labels {
		fmt.Fprintf(&b, "- %s (id: %s, type: %s", l.Name, l.ID, strings.ToLower(l.Type))
		if l.MessagesTotal > 0 {
			fmt.Fprintf(&b, ", messages: %d, unread: %d", l.MessagesTotal, l.MessagesUnread)
		}
		b.WriteString(")\n")
	}
	return b.String()
}
