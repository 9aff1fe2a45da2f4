package share

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aimerfeng/scribe/internal/logging"
	"github.com/rs/zerolog"
)

// Scheduler periodically removes expired shares
type Scheduler struct {
	service    *Service
	interval   time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
	lastRun    time.Time
	lastPurged int64
	logger     zerolog.Logger
}

// NewScheduler creates a purge scheduler
func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logging.NewLogger("share_scheduler"),
	}
}

// Start begins periodic purging
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info().Dur("interval", s.interval).Msg("Share purge scheduler started")
	return nil
}

// Stop halts the scheduler and waits for an in-flight purge
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("Share purge scheduler stopped")
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns when the last purge finished and how many rows it removed
func (s *Scheduler) LastRun() (time.Time, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastPurged
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunNow(ctx)
		}
	}
}

// RunNow purges expired shares immediately
func (s *Scheduler) RunNow(ctx context.Context) {
	n, err := s.service.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Share purge failed")
		return
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastPurged = n
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("Expired shares purged")
	}
}
