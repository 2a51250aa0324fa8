// Package scheduler delivers due reminders. A cron-driven sweep reads
// reminders whose due time has passed and pushes a notification through the
// configured messenger, marking each reminder completed once delivered.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"whatshound/pkg/whatshound/channels"
	"whatshound/pkg/whatshound/store"
)

// DefaultSweepSpec runs the sweep once a minute.
const DefaultSweepSpec = "* * * * *"

// Config tunes the reminder scheduler.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// SweepSpec is the cron expression for the reminder sweep.
	SweepSpec string `yaml:"sweep_spec"`
	// SendTimeout bounds one notification delivery.
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// Scheduler sweeps the reminders table and notifies users.
type Scheduler struct {
	cfg       Config
	store     store.Store
	messenger channels.Messenger
	logger    *slog.Logger

	cron *cron.Cron
	mu   sync.Mutex
}

func New(cfg Config, st store.Store, messenger channels.Messenger, logger *slog.Logger) *Scheduler {
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = DefaultSweepSpec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		store:     st,
		messenger: messenger,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start registers the sweep and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.SweepSpec, s.Sweep); err != nil {
		return fmt.Errorf("registering sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", "spec", s.cfg.SweepSpec)
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("scheduler stopped")
}

// Sweep delivers every due reminder once. Failed sends leave the reminder
// uncompleted so the next sweep retries it.
func (s *Scheduler) Sweep() {
	due, err := s.store.DueReminders(time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to load due reminders", "err", err)
		return
	}
	for _, r := range due {
		if err := s.deliver(r); err != nil {
			s.logger.Warn("reminder delivery failed", "id", r.ID, "user", r.UserID, "err", err)
			continue
		}
		if err := s.store.CompleteReminder(r.ID); err != nil {
			s.logger.Error("failed to complete reminder", "id", r.ID, "err", err)
		}
	}
}

func (s *Scheduler) deliver(r store.Reminder) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
	defer cancel()
	return s.messenger.Send(ctx, r.UserID, &channels.OutgoingMessage{
		Content: fmt.Sprintf("⏰ *Reminder:* %s", r.Task),
	})
}
