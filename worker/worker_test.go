package worker

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/h2load-go/h2load/client"
	"github.com/h2load-go/h2load/clock"
	"github.com/h2load-go/h2load/config"
	"github.com/h2load-go/h2load/pacing"
	"github.com/h2load-go/h2load/testtarget"
)

func targetFor(t *testing.T, addr string) (config.Target, []string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	return config.Target{Scheme: "http", Host: host, Port: port, Path: "/"}, []string{addr}
}

// TestScenarioS1 drives `-n 10 -c 2 -t 1` against a server that always
// returns 200 and checks total_req_sent=10, req_done=10, status[2]=10.
func TestScenarioS1(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	target, addrs := targetFor(t, srv.Addr())
	cfg := &config.Config{
		Targets:              []config.Target{target},
		Protocol:             config.ProtoH1,
		Nreqs:                10,
		Nclients:             2,
		Nthreads:             1,
		MaxConcurrentStreams: 1,
	}
	counters := config.NewCounters(cfg.ResolveNreqs())
	w := New(0, cfg, counters, clock.Real, cfg.Targets, addrs, cfg.Nclients, 0, 0)

	start := make(chan struct{})
	close(start)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), start)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish within 5s")
	}

	acc := w.Accumulator()
	if acc.ReqDone != 10 {
		t.Fatalf("ReqDone = %d, want 10", acc.ReqDone)
	}
	if acc.Status.HTTP[1] != 10 {
		t.Fatalf("status[2xx] = %d, want 10", acc.Status.HTTP[1])
	}
	if counters.SentCount() != 10 {
		t.Fatalf("total_req_sent = %d, want 10", counters.SentCount())
	}
}

// TestScenarioS4QPSMode drives a short `--qps 100 -D 700ms` run and
// checks that the worker ends in PhaseDurationOver having actually
// issued and completed some requests under QPS pacing rather than
// count-mode draining.
func TestScenarioS4QPSMode(t *testing.T) {
	srv, err := testtarget.New()
	if err != nil {
		t.Fatalf("testtarget.New: %v", err)
	}
	defer srv.Close()

	target, addrs := targetFor(t, srv.Addr())
	cfg := &config.Config{
		Targets:              []config.Target{target},
		Protocol:             config.ProtoH1,
		Nclients:             2,
		Nthreads:             1,
		QPS:                  100,
		Duration:             700 * time.Millisecond,
		MaxConcurrentStreams: 1,
	}
	counters := config.NewCounters(cfg.ResolveNreqs())
	w := New(0, cfg, counters, clock.Real, cfg.Targets, addrs, cfg.Nclients, 0, 100)

	if w.mode != pacing.ModeQPS {
		t.Fatalf("mode = %v, want ModeQPS", w.mode)
	}

	start := make(chan struct{})
	close(start)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), start)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not finish within 3s")
	}

	if w.phase != client.PhaseDurationOver {
		t.Fatalf("phase = %v, want PhaseDurationOver", w.phase)
	}
	acc := w.Accumulator()
	if acc.ReqDone == 0 {
		t.Fatal("ReqDone = 0, want at least one completed request under QPS pacing")
	}
	if srv.Requests() == 0 {
		t.Fatal("server saw no requests")
	}
}

// TestConnectRefusedFails exercises the per-Client half of the
// all-connects-refused scenario: Connect against an address nothing
// listens on returns ErrConnectFailed. The "not issued" accounting
// (req_failed == req_error == nreqs) is reducer-level and covered by
// stats.TestReducerNotIssuedInCountMode.
func TestConnectRefusedFails(t *testing.T) {
	addr, err := testtarget.ClosedAddr()
	if err != nil {
		t.Fatalf("ClosedAddr: %v", err)
	}
	target, addrs := targetFor(t, addr)
	cfg := &config.Config{
		Targets:              []config.Target{target},
		Protocol:             config.ProtoH1,
		Nreqs:                4,
		Nclients:             4,
		Nthreads:             1,
		MaxConcurrentStreams: 1,
	}
	counters := config.NewCounters(cfg.ResolveNreqs())
	w := New(0, cfg, counters, clock.Real, cfg.Targets, addrs, cfg.Nclients, 0, 0)

	start := make(chan struct{})
	close(start)

	// Count mode with every connect refused never drains
	// total_req_left (no Client ever submits), so drive the loop
	// manually instead of waiting on Run to return.
	for i := uint64(0); i < cfg.Nclients; i++ {
		c := w.newClient()
		err := c.Connect(context.Background())
		if err == nil {
			t.Fatal("Connect succeeded against a closed port")
		}
		if !strings.Contains(err.Error(), "connect failed") {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}
