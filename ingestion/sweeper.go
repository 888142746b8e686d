package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/imago/storage"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepAge      = 10 * time.Minute
)

// Sweeper periodically force-fails tasks that stopped making progress, so
// clients polling a task whose worker died eventually see a terminal state.
type Sweeper struct {
	tasks    storage.TaskStore
	interval time.Duration
	age      time.Duration
	logger   *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often the sweep runs. Default is one minute.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

// WithSweepAge sets how long a task may sit without an update before it is
// failed as timed out. Default is ten minutes.
func WithSweepAge(age time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.age = age
	}
}

// NewSweeper creates a sweeper over the given task store.
func NewSweeper(tasks storage.TaskStore, opts ...SweeperOption) (*Sweeper, error) {
	if tasks == nil {
		return nil, ErrTaskStoreRequired
	}

	s := &Sweeper{
		tasks:    tasks,
		interval: defaultSweepInterval,
		age:      defaultSweepAge,
		logger:   slog.Default().With("component", "sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := s.tasks.Sweep(ctx, s.age)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				s.logger.Error("sweep failed", "err", err)
				continue
			}
			if count > 0 {
				s.logger.Warn("timed out tasks failed", "count", count)
			}
		}
	}
}
