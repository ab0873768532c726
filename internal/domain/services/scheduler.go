package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// tickLockKey is the distributed lock guarding a tick across replicas
const tickLockKey = "simulation:tick"

// ErrTickLocked is returned by RunOnce when another replica holds the tick lock
var ErrTickLocked = errors.New("tick lock held by another instance")

// TickSource delivers the input for each tick
type TickSource interface {
	Name() string
	Next(ctx context.Context) (*models.TickInput, error)
}

// TickProcessor runs one tick of the pipeline
type TickProcessor interface {
	ProcessTick(ctx context.Context, in models.TickInput) (*TickReport, error)
}

// TickLocker is an optional distributed lock so only one replica drives the
// simulation when several share a backing store
type TickLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// SnapshotSink receives the dashboard snapshot after every tick
type SnapshotSink interface {
	StoreSnapshot(ctx context.Context, snapshot models.DashboardSnapshot) error
}

// SchedulerStats holds scheduler statistics
type SchedulerStats struct {
	Running        bool          `json:"running"`
	Source         string        `json:"source"`
	Interval       time.Duration `json:"interval"`
	TicksRun       uint64        `json:"ticks_run"`
	TicksSkipped   uint64        `json:"ticks_skipped"`
	TicksFailed    uint64        `json:"ticks_failed"`
	LastTickAt     *time.Time    `json:"last_tick_at,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	LastEventCount int           `json:"last_event_count"`
}

// Scheduler drives the coordinator from a tick source on a fixed interval
type Scheduler struct {
	source    TickSource
	processor TickProcessor
	locker    TickLocker
	snapshots SnapshotSink
	snapshot  func() models.DashboardSnapshot
	interval  time.Duration
	logger    *logger.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stats   SchedulerStats
}

// SchedulerOption customises a Scheduler
type SchedulerOption func(*Scheduler)

// WithTickLocker guards each tick with a distributed lock
func WithTickLocker(l TickLocker) SchedulerOption {
	return func(s *Scheduler) { s.locker = l }
}

// WithSnapshotSink publishes the dashboard snapshot after every tick
func WithSnapshotSink(sink SnapshotSink, snapshot func() models.DashboardSnapshot) SchedulerOption {
	return func(s *Scheduler) {
		s.snapshots = sink
		s.snapshot = snapshot
	}
}

// NewScheduler creates a new Scheduler
func NewScheduler(source TickSource, processor TickProcessor, interval time.Duration, log *logger.Logger, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Scheduler{
		source:    source,
		processor: processor,
		interval:  interval,
		logger:    log.WithComponent("scheduler"),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stats.Source = source.Name()
	s.stats.Interval = interval
	return s
}

// Start runs the tick loop until ctx is cancelled or Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stats.Running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	defer close(doneCh)

	s.logger.Info().
		Str("source", s.source.Name()).
		Dur("interval", s.interval).
		Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrTickLocked) {
				s.logger.Warn().Err(err).Msg("tick failed")
			}
		}
	}
}

// Stop stops the tick loop. It is the only cancellation point.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	s.stats.Running = false
	close(s.stopCh)
	s.logger.Info().Msg("scheduler stopped")
}

// Wait blocks until a running loop has exited
func (s *Scheduler) Wait() {
	s.mu.RLock()
	done := s.doneCh
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the loop is active
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunOnce pulls one input from the source and processes it
func (s *Scheduler) RunOnce(ctx context.Context) (*TickReport, error) {
	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, tickLockKey, s.interval)
		if err != nil {
			s.recordFailure(err)
			return nil, err
		}
		if !acquired {
			s.mu.Lock()
			s.stats.TicksSkipped++
			s.mu.Unlock()
			s.logger.Debug().Msg("could not acquire tick lock, skipping")
			return nil, ErrTickLocked
		}
		defer func() {
			if err := s.locker.ReleaseLock(ctx, tickLockKey); err != nil {
				s.logger.Warn().Err(err).Msg("failed to release tick lock")
			}
		}()
	}

	in, err := s.source.Next(ctx)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	if in == nil {
		in = &models.TickInput{}
	}

	report, err := s.processor.ProcessTick(ctx, *in)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	now := time.Now()
	s.mu.Lock()
	s.stats.TicksRun++
	s.stats.LastTickAt = &now
	s.stats.LastError = ""
	s.stats.LastEventCount = len(report.Events)
	s.mu.Unlock()

	if s.snapshots != nil && s.snapshot != nil {
		if err := s.snapshots.StoreSnapshot(ctx, s.snapshot()); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store dashboard snapshot")
		}
	}

	return report, nil
}

func (s *Scheduler) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TicksFailed++
	s.stats.LastError = err.Error()
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
