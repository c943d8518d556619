// Package scheduler runs the daily birthday dispatch at a configured
// local clock time.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"smscast/pkg/logx"
)

const defaultDailyAt = "09:00"

type Config struct {
	Enabled  bool
	DailyAt  string // "HH:MM"
	Timezone string // IANA name, host local time when empty
}

// Job is the work a trigger fires. The context is the service's
// lifetime context, so a shutdown cancels an in-flight run.
type Job func(ctx context.Context) error

type Service struct {
	log logx.Logger
	job Job

	mu      sync.Mutex
	cfg     Config
	cron    *cron.Cron
	running bool
	baseCtx context.Context
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	return &Service{log: log, job: job, cfg: cfg}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx = ctx
	return s.rescheduleLocked()
}

// Apply reconfigures the trigger. A run already in flight finishes
// under the old settings.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return nil
	}
	s.cfg = cfg
	if s.baseCtx == nil {
		// Not started yet, Start will pick the config up.
		return nil
	}
	return s.rescheduleLocked()
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) rescheduleLocked() error {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if !s.cfg.Enabled {
		s.log.Info("daily dispatch disabled")
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("scheduler: timezone: %w", err)
		}
		loc = l
	}
	spec, err := cronSpec(s.cfg.DailyAt)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, s.runJob); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	c.Start()
	s.cron = c
	s.log.Info("daily dispatch scheduled",
		logx.String("at", clockOrDefault(s.cfg.DailyAt)),
		logx.String("tz", loc.String()))
	return nil
}

// runJob is the cron callback. Overlapping runs are skipped rather
// than queued so a slow batch cannot pile up behind itself.
func (s *Service) runJob() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("previous run still in progress, skipping")
		return
	}
	s.running = true
	ctx := s.baseCtx
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("daily dispatch panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.log.Error("daily dispatch failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Info("daily dispatch finished", logx.Duration("took", time.Since(start)))
}

func clockOrDefault(dailyAt string) string {
	if strings.TrimSpace(dailyAt) == "" {
		return defaultDailyAt
	}
	return strings.TrimSpace(dailyAt)
}

func cronSpec(dailyAt string) (string, error) {
	raw := clockOrDefault(dailyAt)
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return "", fmt.Errorf("scheduler: invalid daily_at %q (want HH:MM)", raw)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}
