package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teemow/inboxprune/internal/audit"
	"github.com/teemow/inboxprune/internal/batch"
	"github.com/teemow/inboxprune/internal/config"
	"github.com/teemow/inboxprune/internal/deletion"
	"github.com/teemow/inboxprune/internal/gmail"
	"github.com/teemow/inboxprune/internal/google"
	"github.com/teemow/inboxprune/internal/instrumentation"
	"github.com/teemow/inboxprune/internal/logging"
	"github.com/teemow/inboxprune/internal/mailbox"
	"github.com/teemow/inboxprune/internal/query"
	"github.com/teemow/inboxprune/internal/retry"
	"github.com/teemow/inboxprune/internal/tickets"
	"github.com/teemow/inboxprune/internal/unsubscribe"
)

// Stores are the process-wide ticket and audit stores.
type Stores struct {
	Tickets tickets.Store
	Audit   audit.Store
	Checks  map[string]ReadinessCheck
	closers []func() error
}

// Close releases the store connections.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// OpenStores connects the ticket and audit stores selected by cfg.
func OpenStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stores, error) {
	s := &Stores{Checks: make(map[string]ReadinessCheck)}

	switch cfg.Tickets.Store {
	case config.StoreRedis:
		rdb, err := tickets.NewRedisClient(ctx, tickets.RedisOptions{
			Addr:     cfg.Tickets.Redis.Addr,
			Password: cfg.Tickets.Redis.Password,
			DB:       cfg.Tickets.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		store := tickets.NewRedisStore(rdb, cfg.Tickets.Redis.KeyPrefix)
		s.Tickets = store
		s.Checks["tickets"] = store.Ping
		s.closers = append(s.closers, rdb.Close)
	default:
		store := tickets.NewMemoryStore(logger)
		store.StartSweeper(cfg.Tickets.SweepInterval)
		s.Tickets = store
		s.closers = append(s.closers, store.Close)
	}

	switch cfg.Audit.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		store, err := audit.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			_ = s.Close()
			return nil, err
		}
		s.Audit = store
		s.Checks["audit"] = store.Ping
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
	default:
		store, err := audit.OpenFileStore(cfg.Audit.Path)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Audit = store
		s.Checks["audit"] = func(context.Context) error {
			_, err := os.Stat(filepath.Dir(store.Path()))
			return err
		}
	}
	return s, nil
}

// Stack assembles mailbox services from the policy and the shared stores.
type Stack struct {
	Config   config.Config
	ReadOnly bool
	Tickets  tickets.Store
	Audit    audit.Store
	Metrics  *instrumentation.Metrics
	Logger   *slog.Logger

	// Authenticator returns the credential source for an account. It
	// defaults to the token files written by "inboxprune auth".
	Authenticator func(account string) (google.Authenticator, error)
}

// Factory returns a ServiceFactory that authenticates the account and
// builds its service.
func (st *Stack) Factory() ServiceFactory {
	return func(ctx context.Context, account string) (*mailbox.Service, error) {
		newAuth := st.Authenticator
		if newAuth == nil {
			newAuth = fileAuthenticator
		}
		auth, err := newAuth(account)
		if err != nil {
			return nil, err
		}
		svc, err := auth.Authenticate(ctx)
		if err != nil {
			st.Metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshFailure)
			return nil, err
		}
		st.Metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshSuccess)
		return st.NewService(account, gmail.NewClient(svc, account), auth.HasRequiredScope()), nil
	}
}

func fileAuthenticator(account string) (google.Authenticator, error) {
	return google.NewFileAuthenticator(account)
}

// NewService wires the query engine, delete workflow and unsubscribe scanner
// over gw. The gateway is instrumented and rate limited here.
func (st *Stack) NewService(account string, gw gmail.Gateway, hasRequiredScope bool) *mailbox.Service {
	cfg := st.Config
	logger := logging.OrDiscard(st.Logger)
	gw = gmail.NewRateLimited(gmail.NewInstrumented(gw, st.Metrics), cfg.Gateway.RequestsPerSecond, cfg.Gateway.Burst)

	attempts := cfg.Retry.MaxAttempts
	if attempts == 0 {
		// zero means no retries in the policy file but "default" in retry.Config
		attempts = -1
	}
	exec := retry.New(retry.Config{
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		MaxAttempts: attempts,
	}, logger)
	exec.OnRetry = func(int, time.Duration, error) {
		st.Metrics.RecordRetry(context.Background())
	}

	sched := batch.New(batch.Config{
		BatchSize:   cfg.Batch.Size,
		PacingDelay: cfg.Batch.PacingDelay,
	}, logger)
	sched.OnBatch = func(_ int, err error) {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		st.Metrics.RecordBatch(context.Background(), status)
	}

	engine := query.New(gw, exec, query.Config{
		FetchBatchSize: cfg.Fetch.BatchSize,
		PacingDelay:    cfg.Fetch.PacingDelay,
		Concurrency:    cfg.Fetch.Concurrency,
	}, logger)

	wf := deletion.New(deletion.Deps{
		Engine:    engine,
		Gateway:   gw,
		Retry:     exec,
		Scheduler: sched,
		Tickets:   st.Tickets,
		Audit:     st.Audit,
	}, deletion.Config{
		TicketTTL:           cfg.Tickets.TTL,
		ReadOnly:            st.ReadOnly,
		DefaultMaxDeletions: cfg.Deletion.DefaultMaxDeletions,
	}, logger)
	if st.Metrics != nil {
		wf.Metrics = st.Metrics
	}

	return mailbox.New(mailbox.Options{
		Account:          account,
		Engine:           engine,
		Workflow:         wf,
		Scanner:          unsubscribe.New(engine, cfg.Unsubscribe.TrustedDomains, logger),
		Audit:            st.Audit,
		HasRequiredScope: hasRequiredScope,
	}, logger)
}
