package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/inboxprune/internal/instrumentation"
	"github.com/teemow/inboxprune/internal/logging"
	"github.com/teemow/inboxprune/internal/mailbox"
)

// DefaultAccount is used when a tool call names no account.
const DefaultAccount = "default"

// ServiceFactory builds the mailbox service for one account.
type ServiceFactory func(ctx context.Context, account string) (*mailbox.Service, error)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Options configures a ServerContext.
type Options struct {
	Factory    ServiceFactory
	Metrics    *instrumentation.Metrics
	ToolLogger *instrumentation.ToolLogger
	Logger     *slog.Logger
}

// ServerContext holds the per-account mailbox services and the process-wide
// collaborators shared by every tool handler.
type ServerContext struct {
	ctx        context.Context
	cancel     context.CancelFunc
	factory    ServiceFactory
	services   map[string]*mailbox.Service
	metrics    *instrumentation.Metrics
	toolLogger *instrumentation.ToolLogger
	logger     *slog.Logger
	checks     map[string]ReadinessCheck
	closers    []func() error
	builds     singleflight.Group
	mu         sync.RWMutex
	shutdown   bool
	// epoch changes on ForgetAccount so in-flight builds are not cached
	epoch uint64
}

// NewServerContext returns a ServerContext. Services are created lazily on
// first use of an account.
func NewServerContext(ctx context.Context, opts Options) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		factory:    opts.Factory,
		services:   make(map[string]*mailbox.Service),
		metrics:    opts.Metrics,
		toolLogger: opts.ToolLogger,
		logger:     logging.OrDiscard(opts.Logger),
		checks:     make(map[string]ReadinessCheck),
	}
}

// Context returns the server context. It is cancelled on Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// ToolLogger returns the tool invocation logger, which may be nil.
func (sc *ServerContext) ToolLogger() *instrumentation.ToolLogger {
	return sc.toolLogger
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// ServiceForAccount returns the cached service for account, building it on
// first use. Failed builds are not cached so a later call can retry after
// the user authenticates. Builds run outside the lock, so a slow token
// refresh for one account does not block the others.
func (sc *ServerContext) ServiceForAccount(account string) (*mailbox.Service, error) {
	if account == "" {
		account = DefaultAccount
	}
	if svc, ok, err := sc.cached(account); ok || err != nil {
		return svc, err
	}

	v, err, _ := sc.builds.Do(account, func() (interface{}, error) {
		if svc, ok, err := sc.cached(account); ok || err != nil {
			return svc, err
		}
		if sc.factory == nil {
			return nil, fmt.Errorf("no mailbox configured for account %s", account)
		}

		sc.mu.RLock()
		epoch := sc.epoch
		sc.mu.RUnlock()

		svc, err := sc.factory(sc.ctx, account)
		if err != nil {
			return nil, err
		}

		sc.mu.Lock()
		defer sc.mu.Unlock()
		if sc.shutdown {
			return nil, errors.New("server is shutting down")
		}
		if existing, ok := sc.services[account]; ok {
			return existing, nil
		}
		if sc.epoch == epoch {
			sc.services[account] = svc
		}
		sc.logger.Info("mailbox service ready", logging.Account(account), slog.Bool("read_only", svc.ReadOnly()))
		return svc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mailbox.Service), nil
}

func (sc *ServerContext) cached(account string) (*mailbox.Service, bool, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if svc, ok := sc.services[account]; ok {
		return svc, true, nil
	}
	if sc.shutdown {
		return nil, false, errors.New("server is shutting down")
	}
	return nil, false, nil
}

// SetServiceForAccount installs svc for account.
func (sc *ServerContext) SetServiceForAccount(account string, svc *mailbox.Service) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.services[account] = svc
}

// ForgetAccount drops the cached service for account so the next call
// rebuilds it from fresh credentials.
func (sc *ServerContext) ForgetAccount(account string) {
	if account == "" {
		account = DefaultAccount
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.services, account)
	sc.epoch++
}

// accountCount returns the number of cached mailbox services.
func (sc *ServerContext) accountCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.services)
}

// AddReadinessCheck registers a named dependency check for /readyz.
func (sc *ServerContext) AddReadinessCheck(name string, check ReadinessCheck) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.checks[name] = check
}

// readinessChecks returns a copy of the registered checks.
func (sc *ServerContext) readinessChecks() map[string]ReadinessCheck {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make(map[string]ReadinessCheck, len(sc.checks))
	for name, check := range sc.checks {
		out[name] = check
	}
	return out
}

// OnShutdown registers fn to run during Shutdown, in reverse order of
// registration.
func (sc *ServerContext) OnShutdown(fn func() error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.closers = append(sc.closers, fn)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and runs the registered closers.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	closers := sc.closers
	sc.closers = nil
	sc.mu.Unlock()

	sc.cancel()
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
