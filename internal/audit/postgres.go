package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records in an audit_records table. Appends from one
// process are serialized; a second writer on the same table fails on the
// sequence primary key instead of forking the chain.
type PostgresStore struct {
	pool *pgxpool.Pool

	mu    sync.Mutex
	chain chain
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore ensures the schema exists and resumes the chain from the
// last stored record.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	var seq int64
	var digest string
	err := pool.QueryRow(ctx, `SELECT sequence, digest FROM audit_records ORDER BY sequence DESC LIMIT 1`).Scan(&seq, &digest)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load audit tail: %w", err)
	default:
		s.chain = chain{seq: seq, prev: digest}
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			sequence     BIGINT PRIMARY KEY,
			ts           TIMESTAMPTZ NOT NULL,
			operation    TEXT NOT NULL,
			account      TEXT NOT NULL DEFAULT '',
			filter       TEXT,
			item_count   INTEGER,
			dry_run      BOOLEAN NOT NULL,
			succeeded    BOOLEAN NOT NULL,
			error_detail TEXT,
			prev_digest  TEXT NOT NULL DEFAULT '',
			digest       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_records(ts);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.chain.seal(r)
	if err != nil {
		return Record{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_records
			(sequence, ts, operation, account, filter, item_count, dry_run, succeeded, error_detail, prev_digest, digest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sealed.Sequence, sealed.Timestamp, string(sealed.Operation), sealed.Account, sealed.Filter,
		sealed.ItemCount, sealed.DryRun, sealed.Succeeded, sealed.ErrorDetail, sealed.PrevDigest, sealed.Digest)
	if err != nil {
		return Record{}, fmt.Errorf("insert audit record: %w", err)
	}
	s.chain.advance(sealed)
	return sealed, nil
}

func (s *PostgresStore) Read(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sequence, ts, operation, account, filter, item_count,
		       dry_run, succeeded, error_detail, prev_digest, digest
		FROM audit_records
		ORDER BY sequence
	`)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r  Record
			op string
		)
		if err := rows.Scan(&r.Sequence, &r.Timestamp, &op, &r.Account, &r.Filter, &r.ItemCount,
			&r.DryRun, &r.Succeeded, &r.ErrorDetail, &r.PrevDigest, &r.Digest); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Operation = Operation(op)
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
