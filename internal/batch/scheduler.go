package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/logging"
)

// RunFunc runs one scheduled batch. ctx carries the batch's max duration as its deadline.
type RunFunc func(ctx context.Context, cfg BatchConfig) error

// Scheduler manages scheduled batch runs
type Scheduler struct {
	configs map[string]BatchConfig
	parser  cron.Parser
	lastRun map[string]time.Time
	running map[string]bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
	now     func() time.Time
	logger  *zap.Logger
}

// NewScheduler creates a new batch scheduler
func NewScheduler(configs []BatchConfig, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		configs: make(map[string]BatchConfig),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		lastRun: make(map[string]time.Time),
		running: make(map[string]bool),
		now:     time.Now,
		logger:  logging.OrNop(logger),
	}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		s.configs[cfg.Name] = cfg
	}

	return s, nil
}

// ParseCron parses a cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled run time for a batch
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok {
		return time.Time{}
	}

	sched, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return time.Time{}
	}

	return sched.Next(s.now())
}

// ShouldRun returns true if a batch is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok {
		return false
	}

	if s.running[name] {
		return false
	}

	sched, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return false
	}

	now := s.now()
	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = now.Add(-24 * time.Hour)
	}

	nextRun := sched.Next(lastRun)
	return now.After(nextRun)
}

// MarkRunning marks a batch as running. Returns false if it already was.
func (s *Scheduler) MarkRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

// MarkComplete marks a batch as complete
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// IsRunning reports whether a batch is in flight
func (s *Scheduler) IsRunning(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running[name]
}

// GetConfig returns the config for a batch
func (s *Scheduler) GetConfig(name string) (BatchConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	return cfg, ok
}

// ListBatches returns all batch names, sorted
func (s *Scheduler) ListBatches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tick starts every due batch in its own goroutine and returns the names started
func (s *Scheduler) Tick(ctx context.Context, run RunFunc) []string {
	var started []string
	for _, name := range s.ListBatches() {
		if !s.ShouldRun(name) || !s.MarkRunning(name) {
			continue
		}
		cfg, _ := s.GetConfig(name)
		started = append(started, name)

		s.wg.Add(1)
		go func(c BatchConfig) {
			defer s.wg.Done()
			defer s.MarkComplete(c.Name)

			runCtx, cancel := context.WithTimeout(ctx, c.MaxDuration.Duration)
			defer cancel()

			s.logger.Info("scheduled batch starting", zap.String("batch", c.Name), zap.String("input", c.Input))
			if err := run(runCtx, c); err != nil {
				s.logger.Error("scheduled batch failed", zap.String("batch", c.Name), zap.Error(err))
				return
			}
			s.logger.Info("scheduled batch finished", zap.String("batch", c.Name))
		}(cfg)
	}
	return started
}

// Start checks the schedule every interval until ctx is done, then waits for running batches
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx, run)
		}
	}
}

// Wait blocks until every started batch has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
