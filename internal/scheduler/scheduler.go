package scheduler

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"kvadrat/server/config"
)

// JobType represents different types of scheduled jobs
type JobType int

const (
	JobTypeStartup JobType = iota
	JobTypeDaily
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeStartup:
		return "startup"
	case JobTypeDaily:
		return "daily"
	default:
		return "unknown"
	}
}

// AggregateRefresher rebuilds the segment grid
type AggregateRefresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler manages periodic aggregate refreshes
type Scheduler struct {
	refresher    AggregateRefresher
	cfg          *config.Config
	logger       *logrus.Logger
	stopChan     chan struct{}
	wg           sync.WaitGroup
	jobMutex     sync.Mutex  // Ensures sequential job execution
	isStartupRun atomic.Bool // Tracks whether we're in startup run
}

// NewScheduler creates a new scheduler
func NewScheduler(refresher AggregateRefresher, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	s := &Scheduler{
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
	s.isStartupRun.Store(true) // Initialize as true for startup
	return s
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// runScheduler handles all scheduled tasks
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	// Run the startup refresh in a separate goroutine so a slow rebuild
	// does not delay the ticker loop
	go func() {
		s.jobMutex.Lock()
		defer s.jobMutex.Unlock()
		s.runRefresh(JobTypeStartup)
		s.isStartupRun.Store(false) // Mark startup as complete
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.executeScheduledJobs(t)
		}
	}
}

// executeScheduledJobs runs all jobs that are scheduled for the given time
func (s *Scheduler) executeScheduledJobs(t time.Time) {
	// Skip if we're still running startup jobs
	if s.isStartupRun.Load() {
		s.logger.Debug("Skipping scheduled jobs while startup is in progress")
		return
	}

	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	if t.Hour() == s.cfg.Aggregates.RefreshHour && t.Minute() == 0 {
		s.runRefresh(JobTypeDaily)
	}
}

// runRefresh executes one aggregate refresh
func (s *Scheduler) runRefresh(jobType JobType) {
	s.logger.WithField("job_type", jobType.String()).Info("Starting aggregate refresh job")

	if err := s.refresher.Refresh(context.Background()); err != nil {
		s.logger.WithError(err).WithField("job_type", jobType.String()).Error("Aggregate refresh job failed")
	} else {
		s.logger.WithField("job_type", jobType.String()).Info("Aggregate refresh job completed successfully")
	}
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
