package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/windserver/internal/logger"
	"github.com/i474232898/windserver/internal/weather"
)

// Harvester is the job the scheduler drives.
type Harvester interface {
	Run(ctx context.Context) weather.RunResult
}

// Scheduler runs the harvester once at start and then on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	harvester Harvester
	interval  time.Duration
	logger    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. Runs are cancelled when ctx is done or Stop is called.
func New(ctx context.Context, interval time.Duration, harvester Harvester, log *logger.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		scheduler: s,
		harvester: harvester,
		interval:  interval,
		logger:    log.Named("scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run starts immediately.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	// SingletonMode skips a tick while the previous harvest is still walking.
	_, err := s.scheduler.Every(interval).SingletonMode().Tag("harvest").Do(s.runOnce)
	if err != nil {
		return err
	}

	s.logger.Info("Harvest scheduled", logger.Duration("interval", interval))
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runOnce() {
	s.logger.Info("Running harvest job")
	res := s.harvester.Run(s.ctx)
	s.logger.Info("Completed harvest job",
		logger.String("run", res.ID),
		logger.String("stop", string(res.Stop)),
		logger.Int("harvested", len(res.Harvested)))
}

// Stop cancels an in-flight harvest and any future runs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
