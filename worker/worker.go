// Package worker implements the Worker (C6): one OS thread's
// cooperative event loop, the set of Clients it owns, its Stats
// Accumulator, and the phase/timer state machine governing
// warm-up/duration/QPS ticking.
package worker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/h2load-go/h2load/client"
	"github.com/h2load-go/h2load/clock"
	"github.com/h2load-go/h2load/config"
	"github.com/h2load-go/h2load/pacing"
	"github.com/h2load-go/h2load/stats"
)

const intervalReportPeriod = time.Second

// connResult is delivered once a Client's initial Connect attempt
// finishes; dialing itself happens off the Worker's goroutine so
// slow/failing addresses don't serialize startup.
type connResult struct {
	c   *client.Client
	err error
}

// Worker owns one I/O loop. All client and accounting state is
// touched only from the goroutine that calls Run: no preemption,
// callbacks run to completion.
type Worker struct {
	ID int

	cfg      *config.Config
	counters *config.Counters
	clk      clock.Clock
	acc      *stats.Accumulator

	clients []*client.Client
	nextGen uint64

	phase client.Phase
	mode  pacing.Mode

	qps  *pacing.QPSController
	rate *pacing.RateController

	events  chan client.ReadEvent
	connRes chan connResult

	nclientsShare uint64
	addrs         []string
	targets       []config.Target

	interval *stats.IntervalReporter
}

// New constructs a Worker. nclientsShare/rateShare/qpsShare are this
// Worker's partition of the global totals, computed by the
// Orchestrator via pacing.Distribute.
func New(id int, cfg *config.Config, counters *config.Counters, clk clock.Clock,
	targets []config.Target, addrs []string, nclientsShare, rateShare, qpsShare uint64) *Worker {

	w := &Worker{
		ID:            id,
		cfg:           cfg,
		counters:      counters,
		clk:           clk,
		acc:           stats.NewAccumulator(),
		events:        make(chan client.ReadEvent, 256),
		connRes:       make(chan connResult, 64),
		nclientsShare: nclientsShare,
		addrs:         addrs,
		targets:       targets,
		interval:      stats.NewIntervalReporter(log.StandardLogger()),
	}
	if cfg.Duration > 0 {
		w.phase = client.PhaseInitialIdle
	} else {
		w.phase = client.PhaseMainDuration
	}

	switch {
	case qpsShare > 0 || (cfg.QPS > 0 && cfg.Duration > 0):
		w.mode = pacing.ModeQPS
		w.qps = pacing.NewQPSController(qpsShare)
	case rateShare > 0:
		w.mode = pacing.ModeRate
		w.rate = pacing.NewRateController(rateShare, nclientsShare)
	default:
		w.mode = pacing.ModeCount
	}
	return w
}

// Phase implements client.PhaseProvider.
func (w *Worker) Phase() client.Phase { return w.phase }

// QPSMode implements client.Pacer.
func (w *Worker) QPSMode() bool { return w.mode == pacing.ModeQPS }

// TryAcquireQPS implements client.Pacer.
func (w *Worker) TryAcquireQPS() bool {
	if w.qps == nil {
		return true
	}
	return w.qps.TryAcquire()
}

// BlockOnQPS implements client.Pacer.
func (w *Worker) BlockOnQPS(c *client.Client) {
	if w.qps != nil {
		w.qps.Block(c)
	}
}

// ObserveRequest implements client.Observer, feeding the live interval
// reporter independently of the end-of-run Accumulator.
func (w *Worker) ObserveRequest(success bool, rttMicros int64, bodyBytes uint64) {
	w.interval.Observe(success, rttMicros, bodyBytes)
}

// Accumulator returns this Worker's stats accumulator (read after Run
// returns).
func (w *Worker) Accumulator() *stats.Accumulator { return w.acc }

// newClient constructs and registers one Client at the next table
// slot.
func (w *Worker) newClient() *client.Client {
	idx := len(w.clients)
	w.nextGen++
	c := client.New(idx, w.nextGen, w.cfg, w.targets, w.addrs, w.counters, w, w, w.clk, w.events, w.acc, w)
	w.clients = append(w.clients, c)
	return c
}

// startConnect dials c off the Worker goroutine, delivering the result
// on connRes.
func (w *Worker) startConnect(ctx context.Context, c *client.Client) {
	go func() {
		err := c.Connect(ctx)
		w.connRes <- connResult{c: c, err: err}
	}()
}

// Run is the Worker's main loop: create the initial client set,
// connect them, then dispatch events until the duration timer (timing
// mode) or full drain (count mode) ends the run.
func (w *Worker) Run(ctx context.Context, start <-chan struct{}) {
	<-start

	initial := w.nclientsShare
	if w.mode == pacing.ModeRate {
		initial = w.rate.Tick()
	}
	for i := uint64(0); i < initial; i++ {
		c := w.newClient()
		w.startConnect(ctx, c)
	}

	var warmUpTimer, durationTimer *time.Timer
	var qpsTicker, rateTicker *time.Ticker

	if w.cfg.Duration > 0 {
		if w.cfg.WarmUpTime > 0 {
			warmUpTimer = time.NewTimer(w.cfg.WarmUpTime)
		} else {
			w.phase = client.PhaseMainDuration
			durationTimer = time.NewTimer(w.cfg.Duration)
		}
	}
	if w.mode == pacing.ModeQPS {
		qpsTicker = time.NewTicker(5 * time.Millisecond)
	}
	if w.mode == pacing.ModeRate {
		period := w.cfg.RatePeriod
		if period <= 0 {
			period = time.Second
		}
		rateTicker = time.NewTicker(period)
	}

	var intervalTicker *time.Ticker
	if w.cfg.Verbose {
		intervalTicker = time.NewTicker(intervalReportPeriod)
		defer intervalTicker.Stop()
	}

	warmUpCh := timerChan(warmUpTimer)
	durationCh := timerChan(durationTimer)
	qpsCh := tickerChan(qpsTicker)
	rateCh := tickerChan(rateTicker)
	intervalCh := tickerChan(intervalTicker)

	for {
		if w.done() {
			break
		}
		select {
		case ev := <-w.events:
			w.handleEvent(ctx, ev)
		case res := <-w.connRes:
			if res.err != nil {
				w.failInitialConnect(res.c)
			} else {
				res.c.FillInitialStreams()
			}
		case <-warmUpCh:
			warmUpCh = nil
			w.onWarmUpFired()
			durationTimer = time.NewTimer(w.cfg.Duration)
			durationCh = timerChan(durationTimer)
		case <-durationCh:
			durationCh = nil
			w.onDurationFired()
		case <-qpsCh:
			w.qps.Tick()
			w.qps.DrainBlocked()
		case <-rateCh:
			n := w.rate.Tick()
			for i := uint64(0); i < n; i++ {
				c := w.newClient()
				w.startConnect(ctx, c)
			}
		case now := <-intervalCh:
			w.interval.Flush(now, intervalReportPeriod)
		}
	}

	if qpsTicker != nil {
		qpsTicker.Stop()
	}
	if rateTicker != nil {
		rateTicker.Stop()
	}
}

func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// done reports whether this Worker's loop should exit: duration mode
// ends when the phase reaches DurationOver; count mode ends when the
// shared budget is exhausted and every Client has drained.
func (w *Worker) done() bool {
	if w.phase == client.PhaseDurationOver {
		return true
	}
	if w.cfg.Duration > 0 {
		return false
	}
	if w.counters.Left() > 0 {
		return false
	}
	return w.acc.ReqStarted <= w.acc.ReqDone
}

func (w *Worker) handleEvent(ctx context.Context, ev client.ReadEvent) {
	if ev.Err != nil {
		if ev.Err == client.ErrRequestTimeout {
			ev.Client.ProcessTimedoutStreams()
			ev.Client.Disconnect()
			return
		}
		if err := ev.Client.TryAgainOrFail(ctx); err != nil {
			ev.Client.Disconnect()
		}
		return
	}
	if err := ev.Client.OnReadable(ev.Data); err != nil {
		ev.Client.Disconnect()
	}
}

func (w *Worker) failInitialConnect(c *client.Client) {
	c.Disconnect()
}

// onWarmUpFired transitions INITIAL_IDLE/WARM_UP to MAIN_DURATION,
// re-snapping every live Client's connect times so warm-up connect
// latency doesn't pollute the measured run.
func (w *Worker) onWarmUpFired() {
	for _, c := range w.clients {
		c.ResnapConnectTimes()
	}
	w.phase = client.PhaseMainDuration
}

// onDurationFired ends the run: zeros the shared budget and stops
// every live Client.
func (w *Worker) onDurationFired() {
	w.counters.Zero()
	w.phase = client.PhaseDurationOver
	w.stopAllClients()
}

func (w *Worker) stopAllClients() {
	for _, c := range w.clients {
		c.ProcessAbandonedStreams()
		c.Disconnect()
	}
}
