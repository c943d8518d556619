package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"smscast/internal/auth"
	"smscast/internal/provider"
	"smscast/pkg/logx"
)

func testConfig() Config {
	return Config{
		SenderPhone: "01000000000",
		SendDelay:   500 * time.Millisecond,
		SendTimeout: time.Second,
	}
}

// countingSleep replaces the inter-send wait so tests can assert
// pacing without waiting for it.
func countingSleep(s *Service) *[]time.Duration {
	var got []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		got = append(got, d)
		return ctx.Err()
	}
	return &got
}

func recipients(n int) []Recipient {
	out := make([]Recipient, 0, n)
	names := []string{"철수", "영희", "민수", "지연", "태현"}
	for i := 0; i < n; i++ {
		out = append(out, Recipient{Name: names[i%len(names)], Phone: "0101111000" + string(rune('0'+i))})
	}
	return out
}

func TestDispatchAllSendsInOrder(t *testing.T) {
	t.Parallel()
	mock := &provider.Mock{}
	svc := New(testConfig(), mock, logx.Nop())
	sleeps := countingSleep(svc)

	recs := recipients(3)
	outcomes, err := svc.DispatchAll(context.Background(), "{name}님 안녕하세요", recs, nil)
	if err != nil {
		t.Fatalf("DispatchAll: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	for i, o := range outcomes {
		if !o.Success {
			t.Fatalf("outcome %d failed: %v", i, o.Err)
		}
		if o.Recipient != recs[i].Name || o.Phone != recs[i].Phone {
			t.Fatalf("outcome %d = %+v, want recipient order preserved", i, o)
		}
		if o.MessageID == "" {
			t.Fatalf("outcome %d has no message id", i)
		}
	}
	if mock.Sent[0].Text != "철수님 안녕하세요" {
		t.Fatalf("rendered text = %q", mock.Sent[0].Text)
	}
	if mock.Sent[0].From != "01000000000" {
		t.Fatalf("sender = %q", mock.Sent[0].From)
	}

	// Two waits for three sends, none after the last.
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2 of send_delay", *sleeps)
	}
	for _, d := range *sleeps {
		if d != 500*time.Millisecond {
			t.Fatalf("sleep duration = %v", d)
		}
	}
}

func TestDispatchAllIsolatesFailures(t *testing.T) {
	t.Parallel()
	recs := recipients(3)
	mock := &provider.Mock{FailFor: map[string]string{recs[1].Phone: "InvalidPhoneNumber"}}
	svc := New(testConfig(), mock, logx.Nop())
	sleeps := countingSleep(svc)

	outcomes, err := svc.DispatchAll(context.Background(), "hello {name}", recs, nil)
	if err != nil {
		t.Fatalf("DispatchAll: %v", err)
	}
	sum := Summarize(outcomes)
	if sum.Sent != 2 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if outcomes[1].Success || outcomes[1].Err == nil {
		t.Fatalf("outcome[1] = %+v, want recorded failure", outcomes[1])
	}
	var se *provider.SendError
	if !errors.As(outcomes[1].Err, &se) {
		t.Fatalf("outcome[1].Err = %v, want *provider.SendError", outcomes[1].Err)
	}
	// The failed send still counts toward pacing.
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(*sleeps))
	}
}

// stallingClient blocks sends to one number until the per-call
// context expires; everything else succeeds immediately.
type stallingClient struct {
	stallPhone string
	sent       []provider.Message
}

func (c *stallingClient) Name() string { return "stalling" }

func (c *stallingClient) Send(ctx context.Context, msg provider.Message) (*provider.SendResult, error) {
	if msg.To == c.stallPhone {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c.sent = append(c.sent, msg)
	return &provider.SendResult{MessageID: "ok", StatusCode: 200}, nil
}

func TestDispatchAllTimesOutStalledSend(t *testing.T) {
	t.Parallel()
	recs := recipients(2)
	cfg := testConfig()
	cfg.SendTimeout = 20 * time.Millisecond
	client := &stallingClient{stallPhone: recs[0].Phone}
	svc := New(cfg, client, logx.Nop())
	countingSleep(svc)

	outcomes, err := svc.DispatchAll(context.Background(), "hi", recs, nil)
	if err != nil {
		t.Fatalf("DispatchAll: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if outcomes[0].Success || !errors.Is(outcomes[0].Err, context.DeadlineExceeded) {
		t.Fatalf("outcome[0] = %+v, want deadline failure", outcomes[0])
	}
	if !outcomes[1].Success {
		t.Fatalf("outcome[1] = %+v, want the batch to continue past the stall", outcomes[1])
	}
	if len(client.sent) != 1 {
		t.Fatalf("accepted sends = %d, want 1", len(client.sent))
	}
}

func TestDispatchAllPreconditions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		cfg      Config
		template string
		recs     []Recipient
		want     error
	}{
		{name: "no sender", cfg: Config{}, template: "hi", recs: recipients(1), want: ErrNoSender},
		{name: "no recipients", cfg: testConfig(), template: "hi", want: ErrNoRecipients},
		{name: "empty template", cfg: testConfig(), template: "  ", recs: recipients(1), want: ErrEmptyTemplate},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := &provider.Mock{}
			svc := New(tt.cfg, mock, logx.Nop())
			countingSleep(svc)
			if _, err := svc.DispatchAll(context.Background(), tt.template, tt.recs, nil); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if mock.Calls() != 0 {
				t.Fatalf("provider called %d times before a valid batch", mock.Calls())
			}
		})
	}
}

func TestDispatchAllAbortsOnMissingCredentials(t *testing.T) {
	t.Parallel()
	mock := &provider.Mock{FailErr: auth.ErrNoCredentials}
	svc := New(testConfig(), mock, logx.Nop())
	countingSleep(svc)

	outcomes, err := svc.DispatchAll(context.Background(), "hi", recipients(3), nil)
	if !errors.Is(err, auth.ErrNoCredentials) {
		t.Fatalf("err = %v", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("outcomes = %+v, want none for an aborted batch", outcomes)
	}
	if mock.Calls() != 1 {
		t.Fatalf("calls = %d, want abort after the first", mock.Calls())
	}
}

func TestDispatchAllReportsProgress(t *testing.T) {
	t.Parallel()
	mock := &provider.Mock{}
	svc := New(testConfig(), mock, logx.Nop())
	countingSleep(svc)

	recs := recipients(2)
	var seen []Progress
	if _, err := svc.DispatchAll(context.Background(), "hi", recs, func(p Progress) {
		seen = append(seen, p)
	}); err != nil {
		t.Fatalf("DispatchAll: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("progress calls = %d", len(seen))
	}
	for i, p := range seen {
		if p.Current != i+1 || p.Total != 2 || p.Recipient != recs[i] {
			t.Fatalf("progress %d = %+v", i, p)
		}
	}
}

func TestDispatchAllStopsOnCancel(t *testing.T) {
	t.Parallel()
	mock := &provider.Mock{}
	svc := New(testConfig(), mock, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel after the second send finishes.
	n := 0
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		n++
		if n == 2 {
			cancel()
		}
		return ctx.Err()
	}

	outcomes, err := svc.DispatchAll(ctx, "hi", recipients(5), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want the two finished before cancel", len(outcomes))
	}
}

func TestApplySwitchesThrottle(t *testing.T) {
	t.Parallel()
	svc := New(testConfig(), &provider.Mock{}, logx.Nop())
	if _, lim := svc.snapshot(); lim != nil {
		t.Fatal("limiter set without rate_per_sec")
	}

	cfg := testConfig()
	cfg.RatePerSec = 4
	svc.Apply(cfg)
	if _, lim := svc.snapshot(); lim == nil {
		t.Fatal("limiter not installed")
	}

	// Defaults backfill zero pacing values.
	svc.Apply(Config{SenderPhone: "01000000000"})
	got, _ := svc.snapshot()
	if got.SendDelay != 500*time.Millisecond || got.SendTimeout != 10*time.Second {
		t.Fatalf("normalized cfg = %+v", got)
	}
}
