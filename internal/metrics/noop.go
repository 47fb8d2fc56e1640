package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncKeyCreated() {}
func (n *NoopRecorder) IncKeyUpdated() {}
func (n *NoopRecorder) IncKeyRevoked() {}
func (n *NoopRecorder) IncKeyRejected(reason string) {}
func (n *NoopRecorder) IncIdempotentReplay() {}
func (n *NoopRecorder) ObserveVerify(result string, d time.Duration) {}
func (n *NoopRecorder) IncVerifyCacheHit() {}
func (n *NoopRecorder) IncVerifyCacheMiss() {}
func (n *NoopRecorder) IncRateLimited() {}
func (n *NoopRecorder) IncAdvisory(outcome string) {}
func (n *NoopRecorder) IncEvent(stage, outcome string) {}
