package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"gotogrow/portal/internal/repository"
	"gotogrow/portal/internal/session"
)

// Scheduler runs the portal's periodic housekeeping: expired password-reset
// tokens are purged daily, and the in-process marker store is swept hourly.
type Scheduler struct {
	cron    *cron.Cron
	users   repository.UserStore
	markers *session.MemoryMarkerStore
	timeout time.Duration
	log     zerolog.Logger
}

func NewScheduler(users repository.UserStore, markers *session.MemoryMarkerStore, opTimeout time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		users:   users,
		markers: markers,
		timeout: opTimeout,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.purgeResetTokens); err != nil {
		return err
	}
	if s.markers != nil {
		if _, err := s.cron.AddFunc("0 0 * * * *", s.sweepMarkers); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs, bounded at 5s.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) purgeResetTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	purged, err := s.users.PurgeExpiredResetTokens(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("reset token purge failed")
		return
	}
	if purged > 0 {
		s.log.Info().Int64("purged", purged).Msg("expired reset tokens purged")
	}
}

func (s *Scheduler) sweepMarkers() {
	if removed := s.markers.Sweep(); removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("stale markers swept")
	}
}
