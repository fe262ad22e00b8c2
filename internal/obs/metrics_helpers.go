package obs

import "time"

// ObservePhaseLatency and friends are nil-safe, mirroring the teacher's
// Service.observeLatency/incResult pattern so callers don't have to guard
// every call site with "if metrics != nil".

func (m *Metrics) ObservePhaseLatency(phase string, since time.Time) {
	if m == nil {
		return
	}
	m.PhaseLatencyMS.WithLabelValues(phase).Observe(float64(time.Since(since).Milliseconds()))
}

func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.OutcomeTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFollowerWaited(d time.Duration) {
	if m == nil {
		return
	}
	m.FollowerWaitedMS.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncFetcher(role string) {
	if m == nil {
		return
	}
	m.FetcherTotal.WithLabelValues(role).Inc()
}

func (m *Metrics) IncLeaseError(phase string) {
	if m == nil {
		return
	}
	m.LeaseErrorsTotal.WithLabelValues(phase).Inc()
}
