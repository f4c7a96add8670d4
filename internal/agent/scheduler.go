package agent

import (
	"context"
	"time"

	"github.com/rahul/codemate/internal/observability"
	"go.uber.org/zap"
)

// Job is periodic background work such as the heartbeat.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs jobs on a fixed interval until its context ends.
type Scheduler struct {
	Interval time.Duration
	Jobs     []Job
	Logger   *observability.Logger
}

func NewScheduler(interval time.Duration, logger *observability.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Scheduler{Interval: interval, Jobs: jobs, Logger: logger}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.Info("scheduler started", zap.Duration("interval", s.Interval), zap.Int("jobs", len(s.Jobs)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job once. A failing job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, j := range s.Jobs {
		if err := j.Run(ctx); err != nil {
			s.Logger.Warn("scheduled job failed", zap.String("job", j.Name), zap.Error(err))
		}
	}
}

// HeartbeatJob marks the process alive in the status board and the event log.
func HeartbeatJob(logger *observability.Logger) Job {
	return Job{Name: "heartbeat", Run: func(context.Context) error {
		observability.Heartbeat()
		logger.LogHeartbeat()
		return nil
	}}
}
