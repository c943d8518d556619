package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"smscast/internal/auth"
	"smscast/internal/message"
	"smscast/internal/provider"
	"smscast/pkg/logx"
)

// ProgressFunc receives a notification before each send attempt.
type ProgressFunc func(Progress)

// Service runs throttled sequential batches against a provider client.
type Service struct {
	log    logx.Logger
	client provider.Client

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, client provider.Client, log logx.Logger) *Service {
	s := &Service{
		log:    log,
		client: client,
		sleep:  sleepCtx,
	}
	s.Apply(cfg)
	return s
}

// Apply swaps the pacing config. In-flight batches keep the snapshot
// they started with.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.normalized()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	} else {
		s.limiter = nil
	}
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// DispatchAll renders the template per recipient and sends in roster
// order. A failed send is recorded and the batch continues. Credential
// errors abort the batch since every remaining send would fail the
// same way. On cancellation the outcomes collected so far are returned
// together with the context error.
func (s *Service) DispatchAll(ctx context.Context, template string, recipients []Recipient, progress ProgressFunc) ([]Outcome, error) {
	cfg, limiter := s.snapshot()
	if strings.TrimSpace(cfg.SenderPhone) == "" {
		return nil, ErrNoSender
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if strings.TrimSpace(template) == "" {
		return nil, ErrEmptyTemplate
	}

	total := len(recipients)
	log := s.log.With(logx.String("batch", uuid.NewString()), logx.Int("total", total))
	log.Info("dispatch started")

	outcomes := make([]Outcome, 0, total)
	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			log.Warn("dispatch cancelled", logx.Int("done", len(outcomes)), logx.Err(err))
			return outcomes, err
		}
		if progress != nil {
			progress(Progress{Current: i + 1, Total: total, Recipient: r})
		}

		text := message.Render(template, r.Name)
		out := Outcome{Recipient: r.Name, Phone: r.Phone, Message: text}
		res, err := s.sendOne(ctx, cfg, provider.Message{To: r.Phone, From: cfg.SenderPhone, Text: text})
		switch {
		case err == nil:
			out.Success = true
			if res != nil {
				out.MessageID = res.MessageID
			}
			log.Debug("sent", logx.Int("n", i+1), logx.String("phone", message.FormatPhone(r.Phone)))
		case errors.Is(err, auth.ErrNoCredentials):
			log.Error("dispatch aborted", logx.Err(err))
			return outcomes, err
		default:
			out.Err = err
			log.Warn("send failed",
				logx.Int("n", i+1),
				logx.String("recipient", r.Name),
				logx.Err(err))
		}
		outcomes = append(outcomes, out)
		if err := ctx.Err(); err != nil {
			log.Warn("dispatch cancelled", logx.Int("done", len(outcomes)), logx.Err(err))
			return outcomes, err
		}

		if i < total-1 {
			if err := s.throttle(ctx, cfg, limiter); err != nil {
				log.Warn("dispatch cancelled", logx.Int("done", len(outcomes)), logx.Err(err))
				return outcomes, err
			}
		}
	}

	sum := Summarize(outcomes)
	log.Info("dispatch finished", logx.Int("sent", sum.Sent), logx.Int("failed", sum.Failed))
	return outcomes, nil
}

// sendOne bounds a single provider call so one stuck request cannot
// stall the whole batch.
func (s *Service) sendOne(ctx context.Context, cfg Config, msg provider.Message) (*provider.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	return s.client.Send(ctx, msg)
}

func (s *Service) throttle(ctx context.Context, cfg Config, limiter *rate.Limiter) error {
	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return s.sleep(ctx, cfg.SendDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
