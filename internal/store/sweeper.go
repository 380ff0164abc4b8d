package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper deletes expired actions on a cron schedule.
type Sweeper struct {
	actions  *ActionStore
	logger   zerolog.Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper builds a sweeper. An empty schedule runs every minute.
func NewSweeper(actions *ActionStore, schedule string, logger zerolog.Logger) *Sweeper {
	if schedule == "" {
		schedule = "* * * * *"
	}
	return &Sweeper{
		actions:  actions,
		logger:   logger,
		schedule: schedule,
	}
}

// Start schedules the sweep job. It returns an error when the schedule
// expression does not parse.
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("expired action sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep deletes every action whose expiry has passed.
func (s *Sweeper) Sweep(ctx context.Context) error {
	n, err := s.actions.DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info().Int64("swept", n).Msg("expired actions deleted")
	}
	return nil
}
