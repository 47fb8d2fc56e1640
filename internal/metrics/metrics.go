// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Verification results.
const (
	VerifySuccess  = "success"
	VerifyInvalid  = "invalid"
	VerifyInactive = "inactive"
)

// Advisory outcomes.
const (
	AdvisoryProvider = "provider"
	AdvisoryCached   = "cached"
	AdvisoryFallback = "fallback"
	AdvisoryEmpty    = "empty"
)

// Lifecycle event pipeline stages and outcomes.
const (
	EventPublish = "publish"
	EventDeliver = "deliver"

	EventSuccess      = "success"
	EventDropped      = "dropped"
	EventRetried      = "retried"
	EventDeadLettered = "dead_lettered"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Key lifecycle metrics
	IncKeyCreated()
	IncKeyUpdated()
	IncKeyRevoked()
	IncKeyRejected(reason string) // reason: "validation", "not_found", "not_editable"
	IncIdempotentReplay()

	// Verification metrics
	ObserveVerify(result string, duration time.Duration)
	IncVerifyCacheHit()
	IncVerifyCacheMiss()
	IncRateLimited()

	// Advisory metrics
	IncAdvisory(outcome string)

	// Lifecycle event metrics
	IncEvent(stage, outcome string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
