package gmail

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxListPageSize is the largest page users.messages.list returns.
const MaxListPageSize = 500

// MaxBatchDeleteIDs is the most ids users.messages.batchDelete accepts.
const MaxBatchDeleteIDs = 1000

// ErrNotFound is returned when the requested message does not exist.
var ErrNotFound = errors.New("message not found")

// Format selects how much of a message Get returns.
type Format string

const (
	// FormatMetadata returns headers from MetadataHeaders only.
	FormatMetadata Format = "metadata"
	// FormatFull returns the complete MIME tree with bodies.
	FormatFull Format = "full"
)

// MetadataHeaders are the headers requested for metadata fetches.
var MetadataHeaders = []string{
	"From",
	"To",
	"Subject",
	"Date",
	"List-Unsubscribe",
	"List-Unsubscribe-Post",
}

// ItemRef identifies a message returned by a list call.
type ItemRef struct {
	ID       string
	ThreadID string
}

// ListPage is one page of a list call.
type ListPage struct {
	Items []ItemRef
	// EstimatedTotal is the server's resultSizeEstimate for the whole query.
	EstimatedTotal int64
	NextPageToken  string
}

// ItemSummary is a lightweight projection of a remote message.
type ItemSummary struct {
	ID           string
	ThreadID     string
	Snippet      string
	InternalDate time.Time
	SizeEstimate int64
	LabelIDs     []string
	// Headers holds the first value of each top-level header.
	Headers map[string]string
	// Payload is the MIME tree; bodies are only present for FormatFull.
	Payload *Part
}

// Header returns the first top-level header named name, ignoring case.
func (s ItemSummary) Header(name string) string {
	if v, ok := s.Headers[name]; ok {
		return v
	}
	for k, v := range s.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	if s.Payload == nil {
		return ""
	}
	top := &Part{Headers: s.Payload.Headers}
	v, _ := FirstHeader(top, name, true)
	return v
}

// Label is a mailbox label.
type Label struct {
	ID             string
	Name           string
	Type           string
	MessagesTotal  int64
	MessagesUnread int64
}

// IsSystem reports whether the label is a built-in system label.
func (l Label) IsSystem() bool {
	return l.Type == "system"
}

// Gateway is the remote mailbox. Implementations are stateless wrappers over
// an authenticated service; retry and pacing are applied by callers.
type Gateway interface {
	List(ctx context.Context, query string, maxResults int64, pageToken string, includeSpamTrash bool) (ListPage, error)
	Get(ctx context.Context, id string, format Format) (ItemSummary, error)
	BatchDelete(ctx context.Context, ids []string) error
	ListLabels(ctx context.Context) ([]Label, error)
}
