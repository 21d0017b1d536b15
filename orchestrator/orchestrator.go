// Package orchestrator implements the Orchestrator (C7): it spawns
// nthreads Workers, partitions clients/rate/qps across them, barrier-
// starts them together, joins, and reduces their Stats Accumulators
// into one Report.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/h2load-go/h2load/clock"
	"github.com/h2load-go/h2load/config"
	"github.com/h2load-go/h2load/pacing"
	"github.com/h2load-go/h2load/stats"
	"github.com/h2load-go/h2load/worker"
)

// Run resolves addresses, builds one Worker per thread, starts them
// together at a single blocking barrier, waits for completion, and
// returns the reduced Report.
func Run(ctx context.Context, cfg *config.Config) (stats.Report, error) {
	addrs, err := config.ResolveAddrs(ctx, cfg.Targets[0])
	if err != nil {
		return stats.Report{}, err
	}

	nreqs := cfg.ResolveNreqs()
	counters := config.NewCounters(nreqs)

	nthreads := int(cfg.Nthreads)
	clientShares := pacing.Distribute(cfg.Nclients, nthreads)
	rateShares := pacing.Distribute(cfg.Rate, nthreads)
	qpsShares := pacing.Distribute(cfg.QPS, nthreads)

	workers := make([]*worker.Worker, nthreads)
	for i := 0; i < nthreads; i++ {
		workers[i] = worker.New(i, cfg, counters, clock.Real, cfg.Targets, addrs,
			clientShares[i], rateShares[i], qpsShares[i])
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(nthreads)
	for _, w := range workers {
		w := w
		go func() {
			defer wg.Done()
			w.Run(ctx, start)
		}()
	}

	startedAt := time.Now()
	close(start)
	wg.Wait()
	elapsed := time.Since(startedAt).Seconds()

	reducer := stats.NewReducer()
	for _, w := range workers {
		acc := w.Accumulator()
		reducer.Add(acc, acc.TotalBytes)
	}

	percentiles := cfg.Percentiles
	if len(percentiles) == 0 {
		percentiles = stats.DefaultPercentiles
	}

	report := reducer.Finish(percentiles, nreqs, !cfg.TimingMode(), elapsed,
		cfg.TimingMode(), cfg.Duration.Seconds(), cfg.SampleVariance)
	return report, nil
}
