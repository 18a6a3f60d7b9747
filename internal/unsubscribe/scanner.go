// Package unsubscribe finds unsubscribe links in matching messages.
//
// Links come from the List-Unsubscribe header. Body extraction is an
// extension point: the default BodyExtractor finds nothing. Trust marking
// is a domain allow-list heuristic and says nothing about whether a link is
// safe to follow.
package unsubscribe

import (
	"context"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"github.com/teemow/inboxprune/internal/gmail"
	"github.com/teemow/inboxprune/internal/logging"
	"github.com/teemow/inboxprune/internal/query"
)

// DefaultMaxResults is the number of messages scanned when none is given.
const DefaultMaxResults = 50

// Method is the HTTP method used to follow a link.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Origin is where a link was found.
type Origin string

const (
	OriginHeader Origin = "header"
	OriginBody   Origin = "body"
)

// DefaultTrustedDomains are well-known senders and mailing services.
var DefaultTrustedDomains = []string{
	"google.com",
	"github.com",
	"linkedin.com",
	"amazon.com",
	"apple.com",
	"microsoft.com",
	"paypal.com",
	"substack.com",
	"mailchimp.com",
	"list-manage.com",
	"sendgrid.net",
	"mailgun.org",
	"amazonses.com",
	"hubspot.com",
	"klaviyo.com",
	"constantcontact.com",
}

// Link is one unsubscribe target.
type Link struct {
	URL     string `json:"url"`
	Method  Method `json:"method"`
	Origin  Origin `json:"origin"`
	Trusted bool   `json:"trusted"`
	// MessageID is the first message the link was found in.
	MessageID string `json:"messageId"`
}

// BodyExtractor finds links in a message body.
type BodyExtractor interface {
	Extract(item gmail.ItemSummary) []Link
}

// NoBodyLinks is a BodyExtractor that finds nothing.
type NoBodyLinks struct{}

func (NoBodyLinks) Extract(gmail.ItemSummary) []Link { return nil }

// Searcher runs a filter. *query.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, req query.Request) (query.Result, error)
}

// Result is the outcome of a scan.
type Result struct {
	Links []Link
	// Scanned is the number of messages inspected.
	Scanned int
	// Dropped is the number of matching messages that could not be fetched.
	Dropped int
}

// Scanner extracts unsubscribe links.
type Scanner struct {
	search  Searcher
	trusted []string
	logger  *slog.Logger

	Body BodyExtractor
}

// New returns a Scanner. A nil trusted list uses DefaultTrustedDomains.
func New(search Searcher, trusted []string, logger *slog.Logger) *Scanner {
	if trusted == nil {
		trusted = DefaultTrustedDomains
	}
	normalized := make([]string, 0, len(trusted))
	for _, d := range trusted {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	return &Scanner{
		search:  search,
		trusted: normalized,
		logger:  logging.WithOperation(logging.OrDiscard(logger), "unsubscribe_scan"),
		Body:    NoBodyLinks{},
	}
}

// Scan searches filter and collects the unsubscribe links of the matches,
// first occurrence of each URL wins.
func (s *Scanner) Scan(ctx context.Context, filter string, maxResults int, verifyTrust bool) (Result, error) {
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}
	res, err := s.search.Search(ctx, query.Request{Filter: filter, MaxResults: maxResults})
	if err != nil {
		return Result{}, err
	}

	out := Result{Links: []Link{}, Scanned: len(res.Items), Dropped: res.Dropped}
	seen := make(map[string]bool)
	add := func(l Link) {
		if l.URL == "" || seen[l.URL] {
			return
		}
		seen[l.URL] = true
		if verifyTrust {
			l.Trusted = s.Trusted(l.URL)
		} else {
			l.Trusted = false
		}
		out.Links = append(out.Links, l)
	}

	for _, item := range res.Items {
		for _, l := range HeaderLinks(item) {
			add(l)
		}
		if s.Body != nil {
			for _, l := range s.Body.Extract(item) {
				l.Origin = OriginBody
				if l.MessageID == "" {
					l.MessageID = item.ID
				}
				add(l)
			}
		}
	}

	s.logger.Debug("scan finished",
		slog.Int("scanned", out.Scanned),
		slog.Int("links", len(out.Links)))
	return out, nil
}

// HeaderLinks returns the List-Unsubscribe links of item in header order.
func HeaderLinks(item gmail.ItemSummary) []Link {
	uris := gmail.ParseListUnsubscribe(item.Header(gmail.HeaderListUnsubscribe))
	if len(uris) == 0 {
		return nil
	}
	oneClick := gmail.IsOneClick(item.Header(gmail.HeaderListUnsubscribePost))

	links := make([]Link, 0, len(uris))
	for _, uri := range uris {
		method := MethodGet
		if oneClick && gmail.IsHTTPURI(uri) {
			method = MethodPost
		}
		links = append(links, Link{
			URL:       uri,
			Method:    method,
			Origin:    OriginHeader,
			MessageID: item.ID,
		})
	}
	return links
}

// Trusted reports whether the link's host, or the domain of a mailto
// address, contains one of the allow-listed domains.
func (s *Scanner) Trusted(rawURL string) bool {
	host := linkHost(rawURL)
	if host == "" {
		return false
	}
	for _, d := range s.trusted {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

func linkHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if strings.EqualFold(u.Scheme, "mailto") {
		addr := u.Opaque
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if parsed, err := mail.ParseAddress(addr); err == nil {
			addr = parsed.Address
		}
		return strings.ToLower(logging.ExtractDomain(addr))
	}
	return strings.ToLower(u.Hostname())
}
