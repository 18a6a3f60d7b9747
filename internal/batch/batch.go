package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxprune/internal/logging"
)

// Defaults used when Config fields are zero.
const (
	DefaultBatchSize   = 50
	DefaultPacingDelay = 2 * time.Second
)

// Result is the outcome of one chunk.
type Result struct {
	Index  int    `json:"index"`
	Size   int    `json:"size"`
	Status string `json:"status"` // "success" or "error"
	Error  string `json:"error,omitempty"`
}

// Outcome aggregates a scheduler run.
type Outcome struct {
	DeletedCount int      `json:"deletedCount"`
	FailedCount  int      `json:"failedCount"`
	Errors       []string `json:"errors,omitempty"`
	Results      []Result `json:"results"`
}

// Batches returns how many chunks were dispatched.
func (o Outcome) Batches() int {
	return len(o.Results)
}

// Config controls chunking and pacing.
type Config struct {
	BatchSize   int
	PacingDelay time.Duration
}

// Worker processes one chunk. A returned error fails the whole chunk.
type Worker func(ctx context.Context, chunk []string) error

// Scheduler dispatches chunks sequentially, pausing between them.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	// Sleep pauses between chunks. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnBatch, if set, is called after every chunk.
	OnBatch func(size int, err error)
}

// New returns a Scheduler. A zero BatchSize or a negative PacingDelay takes
// the default; a zero PacingDelay is kept as "no pause".
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PacingDelay < 0 {
		cfg.PacingDelay = DefaultPacingDelay
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logging.OrDiscard(logger),
		Sleep:  sleep,
	}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Run calls worker once per chunk of ids, in order. A failed chunk counts
// all of its ids as failed and the run continues with the next chunk; the
// pacing pause follows every chunk except the last.
func (s *Scheduler) Run(ctx context.Context, ids []string, worker Worker) Outcome {
	chunks := Chunk(ids, s.cfg.BatchSize)
	out := Outcome{Results: make([]Result, 0, len(chunks))}

	for i, chunk := range chunks {
		res := Result{Index: i, Size: len(chunk), Status: logging.StatusSuccess}
		if err := worker(ctx, chunk); err != nil {
			res.Status = logging.StatusError
			res.Error = err.Error()
			out.FailedCount += len(chunk)
			out.Errors = append(out.Errors, fmt.Sprintf("batch %d/%d (%d items): %v", i+1, len(chunks), len(chunk), err))
			s.logger.Warn("batch failed",
				slog.Int(logging.KeyBatch, i+1),
				logging.Count(len(chunk)),
				logging.Err(err))
			if s.OnBatch != nil {
				s.OnBatch(len(chunk), err)
			}
		} else {
			out.DeletedCount += len(chunk)
			s.logger.Debug("batch done",
				slog.Int(logging.KeyBatch, i+1),
				logging.Count(len(chunk)))
			if s.OnBatch != nil {
				s.OnBatch(len(chunk), nil)
			}
		}
		out.Results = append(out.Results, res)

		if i < len(chunks)-1 && s.cfg.PacingDelay > 0 {
			// A cancelled pause does not stop the run; remaining chunks still go out.
			_ = s.Sleep(ctx, s.cfg.PacingDelay)
		}
	}
	return out
}

// Chunk splits ids into contiguous slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
