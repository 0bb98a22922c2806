package processor

import "sync/atomic"

// Health tracks consecutive flush failures. The processor's health
// endpoint reports degraded once the threshold is crossed; a successful
// flush resets it.
type Health struct {
	failures  atomic.Int64
	threshold int64
}

// NewHealth creates a tracker that degrades after threshold consecutive
// failures.
func NewHealth(threshold int) *Health {
	return &Health{threshold: int64(threshold)}
}

// Fail records one failed flush attempt and returns the consecutive count.
func (h *Health) Fail() int64 {
	return h.failures.Add(1)
}

// Reset clears the failure streak after a successful flush.
func (h *Health) Reset() {
	h.failures.Store(0)
}

// Degraded reports whether the failure streak has crossed the threshold.
func (h *Health) Degraded() bool {
	return h.failures.Load() >= h.threshold
}

// Status returns the health string for the /health endpoint.
func (h *Health) Status() string {
	if h.Degraded() {
		return "degraded"
	}
	return "healthy"
}
