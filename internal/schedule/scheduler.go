// Package schedule polls the source registry and triggers ingestion runs
// when any enabled source is due for a refresh.
package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Config configures the scheduler.
type Config struct {
	// CheckInterval is how often to poll for due sources. Default: 1 minute.
	CheckInterval time.Duration
	// MaxFailCount is the failure count at which a source stops being
	// considered due. Default: 10.
	MaxFailCount int
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.MaxFailCount <= 0 {
		c.MaxFailCount = 10
	}
}

// DueFunc reports how many enabled sources are due for a fetch.
type DueFunc func(ctx context.Context, maxFailCount int) (int, error)

// TriggerFunc kicks one ingestion run.
type TriggerFunc func(ctx context.Context) error

// Scheduler periodically checks for due sources and triggers runs.
type Scheduler struct {
	due     DueFunc
	trigger TriggerFunc
	config  Config
	logger  *slog.Logger
}

// New creates a Scheduler.
func New(due DueFunc, trigger TriggerFunc, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		due:     due,
		trigger: trigger,
		config:  cfg,
		logger:  logger,
	}
}

// Run polls for due sources on a ticker. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Check once immediately on start.
	s.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	n, err := s.due(ctx, s.config.MaxFailCount)
	if err != nil {
		s.logger.Error("schedule: due check", "error", err)
		return
	}
	if n == 0 {
		return
	}

	s.logger.Info("schedule: sources due, starting run", "due", n)
	if err := s.trigger(ctx); err != nil {
		s.logger.Warn("schedule: run", "error", err)
	}
}
