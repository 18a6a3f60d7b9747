// Package audit is the append-only record of mailbox operations.
//
// Every search, count, delete and unsubscribe scan appends one Record. Stores
// chain records: each carries a sequence number, the previous record's digest
// and its own digest over the RFC 8785 canonical JSON form, so truncation or
// edits are detectable with Verify.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// Operation is the kind of audited operation.
type Operation string

const (
	OpSearch          Operation = "search"
	OpCount           Operation = "count"
	OpDelete          Operation = "delete"
	OpUnsubscribeScan Operation = "unsubscribeScan"
)

// Record is one audit entry. Records are never mutated once appended.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	Operation   Operation `json:"operationKind"`
	Account     string    `json:"account,omitempty"`
	Filter      *string   `json:"filter,omitempty"`
	ItemCount   *int      `json:"itemCount,omitempty"`
	DryRun      bool      `json:"dryRun"`
	Succeeded   bool      `json:"succeeded"`
	ErrorDetail *string   `json:"errorDetail,omitempty"`

	Sequence   int64  `json:"sequence"`
	PrevDigest string `json:"prevDigest,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// NewRecord starts a record for op. Timestamps are kept at microsecond
// precision so they survive every backend unchanged.
func NewRecord(now time.Time, op Operation, account, filter string) Record {
	r := Record{
		Timestamp: now.UTC().Truncate(time.Microsecond),
		Operation: op,
		Account:   account,
	}
	if filter != "" {
		r.Filter = &filter
	}
	return r
}

// WithCount sets the item count.
func (r Record) WithCount(n int) Record {
	r.ItemCount = &n
	return r
}

// WithDryRun marks the record as a dry run.
func (r Record) WithDryRun(dryRun bool) Record {
	r.DryRun = dryRun
	return r
}

// Success marks the operation as succeeded.
func (r Record) Success() Record {
	r.Succeeded = true
	r.ErrorDetail = nil
	return r
}

// Failure marks the operation as failed with detail.
func (r Record) Failure(detail string) Record {
	r.Succeeded = false
	r.ErrorDetail = &detail
	return r
}

// Outcome marks the record from err: nil is success.
func (r Record) Outcome(err error) Record {
	if err == nil {
		return r.Success()
	}
	return r.Failure(err.Error())
}

// Store appends and reads records. Append returns the record as persisted,
// with its chain fields set, only once it is durable.
type Store interface {
	Append(ctx context.Context, r Record) (Record, error)
	Read(ctx context.Context) ([]Record, error)
}

// Digest returns the hex sha256 of the record's canonical JSON, excluding
// the Digest field itself.
func Digest(r Record) (string, error) {
	r.Digest = ""
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode audit record: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit record: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// chain tracks the tail of a record sequence. It is not safe for concurrent
// use; stores guard it with their own lock.
type chain struct {
	seq  int64
	prev string
}

// seal returns r with chain fields set without advancing the chain.
func (c *chain) seal(r Record) (Record, error) {
	r.Sequence = c.seq + 1
	r.PrevDigest = c.prev
	d, err := Digest(r)
	if err != nil {
		return Record{}, err
	}
	r.Digest = d
	return r, nil
}

// advance moves the tail to a persisted record.
func (c *chain) advance(r Record) {
	c.seq = r.Sequence
	c.prev = r.Digest
}

// Verify checks that records form an unbroken chain starting at sequence 1.
func Verify(records []Record) error {
	var prev string
	for i, r := range records {
		want := int64(i + 1)
		if r.Sequence != want {
			return fmt.Errorf("record %d: sequence %d, want %d", i+1, r.Sequence, want)
		}
		if r.PrevDigest != prev {
			return fmt.Errorf("record %d: previous digest does not match", r.Sequence)
		}
		d, err := Digest(r)
		if err != nil {
			return fmt.Errorf("record %d: %w", r.Sequence, err)
		}
		if d != r.Digest {
			return fmt.Errorf("record %d: digest mismatch", r.Sequence)
		}
		prev = r.Digest
	}
	return nil
}
