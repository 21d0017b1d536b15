package client

import (
	"context"
	"testing"
	"time"

	"github.com/h2load-go/h2load/clock"
	"github.com/h2load-go/h2load/config"
	"github.com/h2load-go/h2load/stats"
	"github.com/h2load-go/h2load/testtarget"
)

type fixedPhase struct{ phase Phase }

func (f fixedPhase) Phase() Phase { return f.phase }

type fakePacer struct {
	qpsMode bool
	acquire bool
	blocked []*Client
}

func (p *fakePacer) QPSMode() bool       { return p.qpsMode }
func (p *fakePacer) TryAcquireQPS() bool { return p.acquire }
func (p *fakePacer) BlockOnQPS(c *Client) { p.blocked = append(p.blocked, c) }

func newTestClient(t *testing.T, cfg *config.Config, srv *testtarget.Server, counters *config.Counters, phase Phase) (*Client, chan ReadEvent) {
	t.Helper()
	targets := []config.Target{{Scheme: "http", Host: "127.0.0.1", Path: "/"}}
	events := make(chan ReadEvent, 64)
	acc := stats.NewAccumulator()
	c := New(0, 1, cfg, targets, []string{srv.Addr()}, counters, &fakePacer{acquire: true},
		fixedPhase{phase: phase}, clock.Real, events, acc, nil)
	return c, events
}

func TestResolveHeadersHostOverride(t *testing.T) {
	authority, rest := config.ResolveHeaders("original.example.com", []config.Header{
		{Name: ":host", Value: "override.example.com"},
		{Name: "x-custom", Value: "1"},
	})
	if authority != "override.example.com" {
		t.Fatalf("authority = %q, want override.example.com", authority)
	}
	if len(rest) != 1 || rest[0].Name != "x-custom" {
		t.Fatalf("rest = %+v", rest)
	}
}

func TestClientConnectAndSubmitRequestH1(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	cfg := &config.Config{
		Protocol:             config.ProtoH1,
		MaxConcurrentStreams: 1,
	}
	// A budget of one: the close of the only request submits no
	// replacement, so exactly one request reaches the server.
	counters := config.NewCounters(1)
	c, events := newTestClient(t, cfg, srv, counters, PhaseMainDuration)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()
	c.FillInitialStreams()

	if c.reqStarted != 1 {
		t.Fatalf("reqStarted = %d, want 1 (initial fill submits one request)", c.reqStarted)
	}

	deadline := time.Now().Add(time.Second)
	for c.acc.ReqDone == 0 && time.Now().Before(deadline) {
		select {
		case ev := <-events:
			if ev.Err != nil {
				t.Fatalf("unexpected read error: %v", ev.Err)
			}
			if err := c.OnReadable(ev.Data); err != nil {
				t.Fatalf("OnReadable: %v", err)
			}
		case <-time.After(50 * time.Millisecond):
		}
	}
	if c.acc.ReqDone != 1 || c.acc.ReqSuccess != 1 {
		t.Fatalf("acc = %+v, want one successful request done", c.acc)
	}
	if srv.Requests() != 1 {
		t.Fatalf("srv.Requests() = %d, want 1", srv.Requests())
	}
}

func TestClientCyclesRequestTemplatesAcrossTargets(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	targets := []config.Target{
		{Scheme: "http", Host: "127.0.0.1", Path: "/a"},
		{Scheme: "http", Host: "127.0.0.1", Path: "/b"},
	}
	cfg := &config.Config{Protocol: config.ProtoH1, MaxConcurrentStreams: 3}
	counters := config.NewCounters(10)
	acc := stats.NewAccumulator()
	events := make(chan ReadEvent, 64)
	c := New(0, 1, cfg, targets, []string{srv.Addr()}, counters, &fakePacer{acquire: true},
		fixedPhase{phase: PhaseMainDuration}, clock.Real, events, acc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()
	c.FillInitialStreams()

	deadline := time.Now().Add(time.Second)
	for c.acc.ReqDone < 3 && time.Now().Before(deadline) {
		select {
		case ev := <-events:
			if ev.Err != nil {
				t.Fatalf("unexpected read error: %v", ev.Err)
			}
			if err := c.OnReadable(ev.Data); err != nil {
				t.Fatalf("OnReadable: %v", err)
			}
		case <-time.After(50 * time.Millisecond):
		}
	}
	if c.acc.ReqDone != 3 {
		t.Fatalf("ReqDone = %d, want 3", c.acc.ReqDone)
	}

	// Each close submits a replacement while budget remains, so the
	// server may already have seen more than three requests; the first
	// three it served are the initial fill, in submission order.
	paths := srv.Paths()
	if len(paths) < 3 {
		t.Fatalf("paths = %v, want at least 3", paths)
	}
	var aCount, bCount int
	for _, p := range paths[:3] {
		switch p {
		case "/a":
			aCount++
		case "/b":
			bCount++
		}
	}
	if aCount != 2 || bCount != 1 {
		t.Fatalf("paths = %v, want two /a and one /b (round-robin over 2 templates, 3 requests)", paths)
	}
}

func TestSubmitRequestQPSBlockedParksClient(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	cfg := &config.Config{Protocol: config.ProtoH1, MaxConcurrentStreams: 1}
	c, _ := newTestClient(t, cfg, srv, config.NewCounters(10), PhaseMainDuration)
	pacer := &fakePacer{qpsMode: true, acquire: false}
	c.pacer = pacer

	if err := c.SubmitRequest(); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if len(pacer.blocked) != 1 || pacer.blocked[0] != c {
		t.Fatalf("pacer.blocked = %v, want [c]", pacer.blocked)
	}
	if c.reqStarted != 0 {
		t.Fatalf("reqStarted = %d, want 0 (request was parked, not issued)", c.reqStarted)
	}
}

func TestSubmitRequestCountExhaustedErrors(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	cfg := &config.Config{Protocol: config.ProtoH1, MaxConcurrentStreams: 1}
	c, _ := newTestClient(t, cfg, srv, config.NewCounters(0), PhaseMainDuration)

	if err := c.SubmitRequest(); err == nil {
		t.Fatal("SubmitRequest succeeded with an exhausted counter")
	}
}

func TestResnapConnectTimesClearsWarmUpLatency(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	cfg := &config.Config{Protocol: config.ProtoH1, MaxConcurrentStreams: 1}
	c, _ := newTestClient(t, cfg, srv, config.NewCounters(10), PhaseWarmUp)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	before := c.stat.ConnectTime
	if before.IsZero() {
		t.Fatal("ConnectTime not stamped by Connect")
	}

	c.ResnapConnectTimes()
	if c.stat.ConnectStartTime != c.stat.ConnectTime {
		t.Fatalf("ResnapConnectTimes should set start==end: %v != %v", c.stat.ConnectStartTime, c.stat.ConnectTime)
	}
}

func TestTryAgainOrFailGivesUpWhenBudgetExhausted(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	cfg := &config.Config{Protocol: config.ProtoH1, MaxConcurrentStreams: 1}
	c, _ := newTestClient(t, cfg, srv, config.NewCounters(0), PhaseDurationOver)

	ctx := context.Background()
	if err := c.TryAgainOrFail(ctx); err == nil {
		t.Fatal("TryAgainOrFail succeeded with no budget left and phase past MainDuration")
	}
}

func TestTryAgainOrFailRedialsWithBudgetLeft(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	cfg := &config.Config{Protocol: config.ProtoH1, MaxConcurrentStreams: 1}
	c, _ := newTestClient(t, cfg, srv, config.NewCounters(10), PhaseMainDuration)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.TryAgainOrFail(ctx); err != nil {
		t.Fatalf("TryAgainOrFail: %v", err)
	}
	defer c.Disconnect()
	if c.state != StateConnected {
		t.Fatalf("state = %v, want StateConnected after redial", c.state)
	}
}
