package services

import (
	"time"

	"github.com/go-co-op/gocron"

	"webchat-backend/internal/config"
	"webchat-backend/internal/logger"
	"webchat-backend/internal/session"
)

// SweeperService periodically drops sessions that have been idle past
// their TTL, reclaiming their in-memory indexes.
type SweeperService struct {
	scheduler *gocron.Scheduler
	sessions  *session.Manager
	ttl       time.Duration
	interval  time.Duration
}

func NewSweeperService(cfg *config.Config, sessions *session.Manager) *SweeperService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &SweeperService{
		scheduler: s,
		sessions:  sessions,
		ttl:       cfg.SessionTTL,
		interval:  cfg.SweepInterval,
	}
}

// Start schedules the sweep and runs it in the background.
func (s *SweeperService) Start() error {
	_, err := s.scheduler.Every(s.interval).Tag("session-sweep").Do(func() {
		removed := s.sessions.Sweep(s.ttl)
		if removed > 0 {
			logger.Debug("sweep cycle complete", "removed", removed)
		}
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop halts scheduling. In-flight sweeps finish first.
func (s *SweeperService) Stop() {
	s.scheduler.Stop()
}
