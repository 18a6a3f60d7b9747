// Package tickets stores confirmation tickets: short-lived, single-use
// credentials that bind a dry-run's matched items to a later delete.
//
// Stores keep expired tickets for a short grace window so a late redemption
// can be told apart from an unknown token; callers evict an expired ticket
// when they reject it.
package tickets

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long a ticket can be redeemed after issue.
	DefaultTTL = 5 * time.Minute
	// DefaultGrace is how long an expired ticket is remembered.
	DefaultGrace = 10 * time.Minute
)

// Ticket binds a filter and its matched item ids to a later confirmed delete.
type Ticket struct {
	Token     string    `json:"token"`
	Account   string    `json:"account"`
	Filter    string    `json:"filter"`
	ItemIDs   []string  `json:"itemIds"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// New issues a ticket with a random token.
func New(now time.Time, ttl time.Duration, account, filter string, itemIDs []string) Ticket {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Ticket{
		Token:     uuid.NewString(),
		Account:   account,
		Filter:    filter,
		ItemIDs:   append([]string(nil), itemIDs...),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the ticket can no longer be redeemed at now.
func (t Ticket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Store persists tickets by token. Implementations serialize their own
// mutations and are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, t Ticket) error
	// Get returns the ticket, including an expired one still in its grace window.
	Get(ctx context.Context, token string) (Ticket, bool, error)
	// Delete removes the ticket and reports whether it was present. Exactly
	// one of several concurrent Deletes for a token observes true.
	Delete(ctx context.Context, token string) (bool, error)
}
