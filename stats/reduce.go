package stats

// ReportCounts are the aggregate request outcome counters surfaced in
// the final report.
type ReportCounts struct {
	Sent          uint64 `json:"sent"`
	Done          uint64 `json:"done"`
	Success       uint64 `json:"success"`
	StatusSuccess uint64 `json:"statusSuccess"`
	Failed        uint64 `json:"failed"`
	Error         uint64 `json:"error"`
	TimedOut      uint64 `json:"timedOut"`
	NotIssued     uint64 `json:"notIssued"`
}

// Report is the end-of-run reduction across all Workers: merged
// counters, the four summary stats, the RTT percentile set, and status
// buckets. This is what the Orchestrator hands to the report formatter.
type Report struct {
	Counts                     ReportCounts       `json:"counts"`
	RequestTime                Summary            `json:"requestTime"`
	ConnectTime                Summary            `json:"connectTime"`
	TTFBTime                   Summary            `json:"ttfbTime"`
	RequestsPerSecondPerClient Summary            `json:"requestsPerSecondPerClient"`
	LatencyPercentilesUs       map[string]int64   `json:"latencyPercentilesUs"`
	Status                     StatusBuckets      `json:"status"`
	TotalBytes                 uint64             `json:"totalBytes"`
	EffectiveRequestsPerSecond float64            `json:"effectiveRequestsPerSecond"`
	EffectiveBytesPerSecond    float64            `json:"effectiveBytesPerSecond"`
}

// Reducer merges per-worker Accumulators into a final Report. It lives
// on the Orchestrator side of the boundary: Workers only ever append to
// their own Accumulator; nothing here is accessed until all Workers have
// joined.
type Reducer struct {
	requestTime *Samples
	connectTime *Samples
	ttfbTime    *Samples
	rpsClient   *Samples
	rtt         *Histogram
	status      StatusBuckets
	totalBytes  uint64

	counts ReportCounts
}

// NewReducer returns an empty Reducer.
func NewReducer() *Reducer {
	return &Reducer{
		requestTime: NewSamples(),
		connectTime: NewSamples(),
		ttfbTime:    NewSamples(),
		rpsClient:   NewSamples(),
		rtt:         NewHistogram(),
		status:      newStatusBuckets(),
	}
}

// Add folds one Worker's Accumulator into the running reduction.
func (r *Reducer) Add(a *Accumulator, totalBytes uint64) {
	for _, rs := range a.ReqStats {
		if !rs.Completed {
			continue
		}
		r.requestTime.Add(float64(rs.Duration().Microseconds()))
		if !rs.TTFB.IsZero() {
			r.ttfbTime.Add(float64(rs.TTFBDuration().Microseconds()))
		}
	}
	for _, cs := range a.ClientStats {
		if d := cs.ConnectDuration(); d > 0 {
			r.connectTime.Add(float64(d.Microseconds()))
		}
		if rps := cs.RequestsPerSecond(); rps > 0 {
			r.rpsClient.Add(rps)
		}
	}

	r.rtt.Merge(a.RTT)
	r.status.merge(a.Status)
	r.totalBytes += totalBytes

	r.counts.Sent += a.ReqStarted
	r.counts.Done += a.ReqDone
	r.counts.Success += a.ReqSuccess
	r.counts.StatusSuccess += a.ReqStatusSuccess
	r.counts.Failed += a.ReqFailed
	r.counts.Error += a.ReqError
	r.counts.TimedOut += a.ReqTimedOut
}

// Finish computes the final Report. elapsed is the wall-clock duration
// of the run used for non-timing-mode RPS/bytes-per-second; durationMode
// true means the timing-mode RPS formula (req_success / duration) is
// used instead, with durationSeconds as the divisor. sampleVariance
// selects sample (n-1) over population (n) variance for every Summary.
func (r *Reducer) Finish(percentiles []float64, nreqs uint64, countMode bool, elapsed float64, durationMode bool, durationSeconds float64, sampleVariance bool) Report {
	if countMode {
		notIssued := int64(nreqs) - int64(r.counts.StatusSuccess) - int64(r.counts.Failed)
		if notIssued > 0 {
			r.counts.NotIssued = uint64(notIssued)
			r.counts.Failed += uint64(notIssued)
			r.counts.Error += uint64(notIssued)
		}
	}

	divisor := elapsed
	if durationMode {
		divisor = durationSeconds
	}

	var rps, bps float64
	if divisor > 0 {
		rps = float64(r.counts.Success) / divisor
		bps = float64(r.totalBytes) / divisor
	}

	return Report{
		Counts:                     r.counts,
		RequestTime:                r.requestTime.Summarize(sampleVariance),
		ConnectTime:                r.connectTime.Summarize(sampleVariance),
		TTFBTime:                   r.ttfbTime.Summarize(sampleVariance),
		RequestsPerSecondPerClient: r.rpsClient.Summarize(sampleVariance),
		LatencyPercentilesUs:       PercentileSet(r.rtt, percentiles),
		Status:                     r.status,
		TotalBytes:                 r.totalBytes,
		EffectiveRequestsPerSecond: rps,
		EffectiveBytesPerSecond:    bps,
	}
}
