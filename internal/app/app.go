// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"smscast/internal/auth"
	"smscast/internal/config"
	"smscast/internal/dispatch"
	"smscast/internal/history"
	"smscast/internal/provider"
	"smscast/internal/roster"
	"smscast/internal/scheduler"
	"smscast/pkg/logx"
)

type App struct {
	log    logx.Logger
	logSvc *logx.Service

	manager    *config.Manager
	signer     *auth.Signer
	client     *provider.Solapi
	dispatcher *dispatch.Service
	hist       history.Store
	roster     *roster.Service
	sched      *scheduler.Service

	cfgCh  chan *config.Config
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	lastCfg *config.Config
}

// New loads the config file and builds every service. Nothing runs
// until Start.
func New(ctx context.Context, configPath string) (*App, error) {
	manager := config.NewManager(configPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	manager.SetLogger(log.With(logx.String("svc", "config")))
	manager.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	hist, err := history.Open(historyConfig(cfg), log.With(logx.String("svc", "history")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("app: open history: %w", err)
	}

	rosterStore, err := roster.NewFileStore(rosterPath(cfg))
	if err != nil {
		hist.Close()
		logSvc.Close()
		return nil, fmt.Errorf("app: open roster: %w", err)
	}
	rosterSvc, err := roster.New(ctx, rosterStore, log.With(logx.String("svc", "roster")))
	if err != nil {
		hist.Close()
		logSvc.Close()
		return nil, fmt.Errorf("app: load roster: %w", err)
	}

	signer := auth.NewSigner(cfg.Provider.APIKey, cfg.Provider.APISecret)
	client := provider.NewSolapi(log, signer, strings.TrimSpace(cfg.Provider.Endpoint), nil)
	dispatcher := dispatch.New(dispatchConfig(cfg), client, log.With(logx.String("svc", "dispatch")))

	a := &App{
		log:        log.With(logx.String("svc", "app")),
		logSvc:     logSvc,
		manager:    manager,
		signer:     signer,
		client:     client,
		dispatcher: dispatcher,
		hist:       hist,
		roster:     rosterSvc,
		lastCfg:    cfg,
	}
	a.sched = scheduler.New(schedulerConfig(cfg), a.runDaily, log.With(logx.String("svc", "scheduler")))
	return a, nil
}

// Start begins watching the config file and arms the daily trigger.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.cfgCh = a.manager.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.manager.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("config watch stopped", logx.Err(err))
		}
	}()

	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.log.Info("started", logx.Int("recipients", a.roster.Count()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.sched.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop", logx.Err(err))
	}
	a.manager.Unsubscribe(a.cfgCh)
	a.wg.Wait()
	if err := a.hist.Close(); err != nil {
		a.log.Warn("history close", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logSvc.Close()
}

// Roster exposes the recipient service for management commands.
func (a *App) Roster() *roster.Service { return a.roster }

// History exposes the delivery history store for queries.
func (a *App) History() history.Store { return a.hist }

// RunOnce fires the daily dispatch immediately, outside the schedule.
func (a *App) RunOnce(ctx context.Context) error { return a.runDaily(ctx) }

// SendToAll dispatches the template to the whole roster and records
// every outcome. Outcomes collected before an abort are still recorded.
func (a *App) SendToAll(ctx context.Context, template string) (dispatch.Summary, error) {
	return a.sendTo(ctx, template, a.roster.List())
}

func (a *App) sendTo(ctx context.Context, template string, recs []roster.Recipient) (dispatch.Summary, error) {
	if strings.TrimSpace(template) == "" {
		template = a.manager.Get().Message.DefaultTemplate
	}

	targets := make([]dispatch.Recipient, 0, len(recs))
	for _, r := range recs {
		targets = append(targets, dispatch.Recipient{Name: r.Name, Phone: r.Phone})
	}

	outcomes, dispErr := a.dispatcher.DispatchAll(ctx, template, targets, func(p dispatch.Progress) {
		a.log.Debug("sending",
			logx.Int("n", p.Current),
			logx.Int("total", p.Total),
			logx.String("recipient", p.Recipient.Name))
	})

	if len(outcomes) > 0 {
		entries := make([]history.Entry, 0, len(outcomes))
		for _, o := range outcomes {
			entries = append(entries, history.Entry{
				Recipient: o.Recipient,
				Phone:     o.Phone,
				Message:   o.Message,
				Success:   o.Success,
				Error:     errString(o.Err),
			})
		}
		if _, err := a.hist.AppendBatch(ctx, entries); err != nil {
			a.log.Error("history append failed", logx.Err(err))
		}
	}

	sum := dispatch.Summarize(outcomes)
	if dispErr != nil {
		return sum, dispErr
	}
	a.log.Info("batch recorded", logx.Int("sent", sum.Sent), logx.Int("failed", sum.Failed))
	return sum, nil
}

// runDaily is the scheduler job: congratulate everyone whose birthday
// is today.
func (a *App) runDaily(ctx context.Context) error {
	due := a.roster.DueToday(time.Now())
	if len(due) == 0 {
		a.log.Info("no birthdays today")
		return nil
	}
	_, err := a.sendTo(ctx, "", due)
	return err
}

func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.lastCfg
	a.lastCfg = cfg
	a.mu.Unlock()

	changed, attrs := config.SummarizeChange(old, cfg)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config reloaded", append(attrs, logx.Any("changed", changed))...)

	a.logSvc.Apply(loggingConfig(cfg))
	a.signer.Apply(cfg.Provider.APIKey, cfg.Provider.APISecret)
	a.client.Apply(strings.TrimSpace(cfg.Provider.Endpoint))
	a.dispatcher.Apply(dispatchConfig(cfg))
	if err := a.sched.Apply(schedulerConfig(cfg)); err != nil {
		a.log.Error("scheduler apply failed", logx.Err(err))
	}

	// Storage backends keep their open handles; switching driver or
	// path takes a restart.
	if old.History != cfg.History {
		a.log.Warn("history settings changed, restart to apply")
	}
	if old.Roster != cfg.Roster {
		a.log.Warn("roster path changed, restart to apply")
	}
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func dispatchConfig(cfg *config.Config) dispatch.Config {
	delay, _ := config.ParseDurationOrDefault("dispatch.send_delay", cfg.Dispatch.SendDelay, 500*time.Millisecond)
	timeout, _ := config.ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, 10*time.Second)
	return dispatch.Config{
		SenderPhone: cfg.Provider.SenderPhone,
		SendDelay:   delay,
		SendTimeout: timeout,
		RatePerSec:  float64(cfg.Dispatch.RatePerSec),
	}
}

func historyConfig(cfg *config.Config) history.Config {
	busy, _ := config.ParseDurationOrDefault("history.busy_timeout", cfg.History.BusyTimeout, 0)
	path := strings.TrimSpace(cfg.History.Path)
	if path == "" {
		path = "delivery_history.jsonl"
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(cfg.History.Driver)), "sqlite") {
			path = "delivery_history.db"
		}
	}
	return history.Config{
		Driver:      cfg.History.Driver,
		Path:        path,
		BusyTimeout: busy,
	}
}

func rosterPath(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.Roster.Path); p != "" {
		return p
	}
	return "roster.json"
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		DailyAt:  cfg.Scheduler.DailyAt,
		Timezone: cfg.Scheduler.Timezone,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
