package scheduler

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"smscast/pkg/logx"
)

func TestCronSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:00", want: "0 9 * * *"},
		{in: "23:59", want: "59 23 * * *"},
		{in: "", want: "0 9 * * *"}, // default 09:00
		{in: " 07:30 ", want: "30 7 * * *"},
		{in: "25:00", wantErr: true},
		{in: "9am", wantErr: true},
	}
	for _, tt := range tests {
		got, err := cronSpec(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("cronSpec(%q) accepted", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("cronSpec(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("cronSpec(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStartRejectsBadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "bad clock", cfg: Config{Enabled: true, DailyAt: "26:00"}, want: "daily_at"},
		{name: "bad tz", cfg: Config{Enabled: true, Timezone: "Mars/Olympus"}, want: "timezone"},
	}
	for _, tt := range tests {
		svc := New(tt.cfg, func(context.Context) error { return nil }, logx.Nop())
		err := svc.Start(context.Background())
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
	}
}

func TestDisabledDoesNotSchedule(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: false}, func(context.Context) error { return nil }, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if svc.cron != nil {
		t.Fatal("cron running while disabled")
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRunJobSkipsOverlap(t *testing.T) {
	t.Parallel()
	var runs atomic.Int32
	block := make(chan struct{})
	started := make(chan struct{})

	svc := New(Config{Enabled: true}, func(context.Context) error {
		runs.Add(1)
		close(started)
		<-block
		return nil
	}, logx.Nop())
	svc.baseCtx = context.Background()

	go svc.runJob()
	<-started

	// Fires while the first run is still blocked.
	svc.runJob()
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want overlap skipped", got)
	}

	close(block)
}

func TestRunJobRecoversPanic(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: true}, func(context.Context) error {
		panic("boom")
	}, logx.Nop())
	svc.baseCtx = context.Background()

	svc.runJob() // must not crash the test binary

	svc.mu.Lock()
	running := svc.running
	svc.mu.Unlock()
	if running {
		t.Fatal("running flag stuck after panic")
	}
}
