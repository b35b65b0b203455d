package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"agroguardian-api/internal/config"
	"agroguardian-api/internal/model"
	"agroguardian-api/internal/service"
	"agroguardian-api/internal/util"
)

// Scheduler runs the background jobs: purging stale OTP and session
// rows, daily treatment reminders, and weekly report generation.
// All jobs are idempotent, so overlapping runs after a slow sweep are
// harmless.
type Scheduler struct {
	otps          model.OTPRepository
	sessions      model.SessionRepository
	notifications *service.NotificationService

	cfg    *config.Config
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(
	otps model.OTPRepository,
	sessions model.SessionRepository,
	notifications *service.NotificationService,
	cfg *config.Config,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		otps:          otps,
		sessions:      sessions,
		notifications: notifications,
		cfg:           cfg,
		logger:        logger,
	}
}

// Start launches the background loops. Call Stop to drain them.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	util.Info("Scheduler started",
		zap.Duration("sweep_interval", s.cfg.Scheduler.SweepInterval))
}

// Stop signals the loops to exit and waits for them.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	util.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	sweep := time.NewTicker(s.cfg.Scheduler.SweepInterval)
	daily := time.NewTicker(24 * time.Hour)
	weekly := time.NewTicker(7 * 24 * time.Hour)
	defer sweep.Stop()
	defer daily.Stop()
	defer weekly.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			s.sweepExpired(ctx)
		case <-daily.C:
			if _, err := s.notifications.SendDailyAlerts(ctx); err != nil {
				util.Error("Daily alert job failed", zap.Error(err))
			}
		case <-weekly.C:
			if _, err := s.notifications.GenerateWeeklyReports(ctx); err != nil {
				util.Error("Weekly report job failed", zap.Error(err))
			}
		}
	}
}

// sweepExpired clears out rows that passive expiry left behind. The
// auth paths never trust row presence, so this is purely hygiene.
func (s *Scheduler) sweepExpired(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()

	otpCutoff := now.Add(-s.cfg.OTP.RetentionAge)
	if deleted, err := s.otps.DeleteOlderThan(sweepCtx, otpCutoff); err != nil {
		util.Error("OTP sweep failed", zap.Error(err))
	} else if deleted > 0 {
		util.Info("Stale OTPs purged", zap.Int("count", deleted))
	}

	if deleted, err := s.sessions.DeleteExpired(sweepCtx, now); err != nil {
		util.Error("Session sweep failed", zap.Error(err))
	} else if deleted > 0 {
		util.Info("Expired sessions purged", zap.Int("count", deleted))
	}
}
