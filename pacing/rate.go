package pacing

// RateController implements the rate pacing discipline: at the start
// of each rate period, create up to ratePerPeriod new Clients, capped
// at this Worker's total client share.
type RateController struct {
	perPeriod uint64
	nclients  uint64
	created   uint64
}

// NewRateController returns a RateController bounded at nclients total
// creations, perPeriod per tick.
func NewRateController(perPeriod, nclients uint64) *RateController {
	return &RateController{perPeriod: perPeriod, nclients: nclients}
}

// Tick reports how many new Clients to spawn this period, 0 once the
// Worker's client share has been exhausted.
func (r *RateController) Tick() uint64 {
	if r.created >= r.nclients {
		return 0
	}
	n := r.perPeriod
	if r.created+n > r.nclients {
		n = r.nclients - r.created
	}
	r.created += n
	return n
}

// Done reports whether every client this Worker owns has been created.
func (r *RateController) Done() bool { return r.created >= r.nclients }

// Created returns the count of clients spawned so far (tests).
func (r *RateController) Created() uint64 { return r.created }
