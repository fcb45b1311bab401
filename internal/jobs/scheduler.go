package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

const janitorRunTimeout = 5 * time.Minute

type Scheduler struct {
	scheduler gocron.Scheduler
	logger    zerolog.Logger
}

func NewScheduler(logger zerolog.Logger) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: scheduler,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

func (s *Scheduler) ScheduleJanitor(janitor *UploadJanitor, interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), janitorRunTimeout)
			defer cancel()
			if _, err := janitor.Run(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Upload janitor sweep failed")
			}
		}),
		gocron.WithName("upload-janitor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule upload janitor: %w", err)
	}
	s.logger.Info().Dur("interval", interval).Msg("Upload janitor scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.logger.Info().Msg("Starting background job scheduler")
	s.scheduler.Start()
}

func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping background job scheduler")
	return s.scheduler.Shutdown()
}
