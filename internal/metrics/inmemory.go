package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	KeysCreated       uint64
	KeysUpdated       uint64
	KeysRevoked       uint64
	KeysRejected      map[string]uint64
	IdempotentReplays uint64
	Verifications     map[string]uint64
	VerifyTotalNs     int64
	VerifyCacheHits   uint64
	VerifyCacheMisses uint64
	RateLimited       uint64
	Advisory          map[string]uint64
	// Events is keyed by "stage/outcome".
	Events map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	keysCreated       uint64
	keysUpdated       uint64
	keysRevoked       uint64
	idempotentReplays uint64
	verifyTotalNs     int64
	verifyCacheHits   uint64
	verifyCacheMisses uint64
	rateLimited       uint64

	mu            sync.Mutex
	keysRejected  map[string]uint64
	verifications map[string]uint64
	advisory      map[string]uint64
	events        map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		keysRejected:  make(map[string]uint64),
		verifications: make(map[string]uint64),
		advisory:      make(map[string]uint64),
		events:        make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		KeysCreated:       atomic.LoadUint64(&m.keysCreated),
		KeysUpdated:       atomic.LoadUint64(&m.keysUpdated),
		KeysRevoked:       atomic.LoadUint64(&m.keysRevoked),
		KeysRejected:      copyCounts(m.keysRejected),
		IdempotentReplays: atomic.LoadUint64(&m.idempotentReplays),
		Verifications:     copyCounts(m.verifications),
		VerifyTotalNs:     atomic.LoadInt64(&m.verifyTotalNs),
		VerifyCacheHits:   atomic.LoadUint64(&m.verifyCacheHits),
		VerifyCacheMisses: atomic.LoadUint64(&m.verifyCacheMisses),
		RateLimited:       atomic.LoadUint64(&m.rateLimited),
		Advisory:          copyCounts(m.advisory),
		Events:            copyCounts(m.events),
	}
}

func (m *InMemoryRecorder) IncKeyCreated() { atomic.AddUint64(&m.keysCreated, 1) }
func (m *InMemoryRecorder) IncKeyUpdated() { atomic.AddUint64(&m.keysUpdated, 1) }
func (m *InMemoryRecorder) IncKeyRevoked() { atomic.AddUint64(&m.keysRevoked, 1) }
func (m *InMemoryRecorder) IncIdempotentReplay() { atomic.AddUint64(&m.idempotentReplays, 1) }
func (m *InMemoryRecorder) IncVerifyCacheHit() { atomic.AddUint64(&m.verifyCacheHits, 1) }
func (m *InMemoryRecorder) IncVerifyCacheMiss() { atomic.AddUint64(&m.verifyCacheMisses, 1) }
func (m *InMemoryRecorder) IncRateLimited() { atomic.AddUint64(&m.rateLimited, 1) }

// IncKeyRejected counts a rejected lifecycle operation by reason.
func (m *InMemoryRecorder) IncKeyRejected(reason string) {
	m.inc(m.keysRejected, reason)
}

// ObserveVerify records a verification attempt.
func (m *InMemoryRecorder) ObserveVerify(result string, duration time.Duration) {
	atomic.AddInt64(&m.verifyTotalNs, duration.Nanoseconds())
	m.inc(m.verifications, result)
}

// IncAdvisory counts an advisory response by outcome.
func (m *InMemoryRecorder) IncAdvisory(outcome string) {
	m.inc(m.advisory, outcome)
}

// IncEvent counts a lifecycle event pipeline outcome.
func (m *InMemoryRecorder) IncEvent(stage, outcome string) {
	m.inc(m.events, stage+"/"+outcome)
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
