package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

const userID = "me"

// Client implements Gateway over the Gmail Users service.
type Client struct {
	svc     *gmail.UsersService
	account string
}

var _ Gateway = (*Client)(nil)

// NewClient wraps an authenticated Gmail service for account.
func NewClient(svc *gmail.Service, account string) *Client {
	return &Client{svc: svc.Users, account: account}
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// List returns one page of message ids matching query.
func (c *Client) List(ctx context.Context, query string, maxResults int64, pageToken string, includeSpamTrash bool) (ListPage, error) {
	if maxResults > MaxListPageSize {
		maxResults = MaxListPageSize
	}
	req := c.svc.Messages.List(userID).Q(query).MaxResults(maxResults).IncludeSpamTrash(includeSpamTrash)
	if pageToken != "" {
		req = req.PageToken(pageToken)
	}
	res, err := req.Context(ctx).Do()
	if err != nil {
		return ListPage{}, fmt.Errorf("failed to list messages: %w", err)
	}

	page := ListPage{
		EstimatedTotal: res.ResultSizeEstimate,
		NextPageToken:  res.NextPageToken,
		Items:          make([]ItemRef, 0, len(res.Messages)),
	}
	for _, m := range res.Messages {
		page.Items = append(page.Items, ItemRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return page, nil
}

// Get fetches a single message.
func (c *Client) Get(ctx context.Context, id string, format Format) (ItemSummary, error) {
	req := c.svc.Messages.Get(userID, id).Format(string(format))
	if format == FormatMetadata {
		req = req.MetadataHeaders(MetadataHeaders...)
	}
	msg, err := req.Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return ItemSummary{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return ItemSummary{}, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return SummaryFromMessage(msg), nil
}

// BatchDelete permanently deletes ids. It does not move them to trash.
func (c *Client) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > MaxBatchDeleteIDs {
		return fmt.Errorf("batch of %d ids exceeds the limit of %d", len(ids), MaxBatchDeleteIDs)
	}
	err := c.svc.Messages.BatchDelete(userID, &gmail.BatchDeleteMessagesRequest{Ids: ids}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete %d messages: %w", len(ids), err)
	}
	return nil
}

// ListLabels returns all labels of the mailbox.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	res, err := c.svc.Labels.List(userID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	labels := make([]Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, Label{
			ID:             l.Id,
			Name:           l.Name,
			Type:           l.Type,
			MessagesTotal:  l.MessagesTotal,
			MessagesUnread: l.MessagesUnread,
		})
	}
	return labels, nil
}

// SummaryFromMessage projects an API message onto ItemSummary.
func SummaryFromMessage(msg *gmail.Message) ItemSummary {
	s := ItemSummary{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		SizeEstimate: msg.SizeEstimate,
		LabelIDs:     msg.LabelIds,
		Headers:      map[string]string{},
	}
	if msg.InternalDate > 0 {
		s.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		s.Payload = PartFromAPI(msg.Payload)
		for _, h := range s.Payload.Headers {
			if _, seen := s.Headers[h.Name]; !seen {
				s.Headers[h.Name] = h.Value
			}
		}
	}
	return s
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
