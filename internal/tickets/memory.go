package tickets

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/inboxprune/internal/logging"
)

// MemoryStore keeps tickets in process memory.
type MemoryStore struct {
	tickets map[string]Ticket
	mu      sync.RWMutex
	grace   time.Duration
	logger  *slog.Logger

	// Now is the clock used for eviction.
	Now func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store. Expired tickets are evicted lazily
// on Get once past the grace window, or by the sweeper if started.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]Ticket),
		grace:   DefaultGrace,
		logger:  logging.OrDiscard(logger),
		Now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func (s *MemoryStore) Put(_ context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.Token] = t
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Ticket, bool, error) {
	s.mu.RLock()
	t, ok := s.tickets[token]
	s.mu.RUnlock()
	if !ok {
		return Ticket{}, false, nil
	}
	if s.Now().After(t.ExpiresAt.Add(s.grace)) {
		s.mu.Lock()
		delete(s.tickets, token)
		s.mu.Unlock()
		return Ticket{}, false, nil
	}
	return t, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tickets[token]
	delete(s.tickets, token)
	return ok, nil
}

// Len returns the number of stored tickets.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}

// Sweep removes tickets past their grace window and returns how many.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	removed := 0
	for token, t := range s.tickets {
		if now.After(t.ExpiresAt.Add(s.grace)) {
			delete(s.tickets, token)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept expired confirmation tickets", logging.Count(removed))
	}
	return removed
}

// StartSweeper runs Sweep every interval until Close is called.
func (s *MemoryStore) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close stops the sweeper.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
