package llmverify

import "time"

// breakerState is the classic three-state circuit breaker model,
// scoped to one helper instance (i.e. one pipeline's lifetime) rather
// than a shared registry: a verification helper is constructed fresh
// per pipeline, so there is nothing to key a registry by.
//
//	Closed --(error rate >= threshold)--> Open --(openDuration elapsed)--> HalfOpen
//	  ^                                                                        |
//	  +---------------(probe succeeds)----------------------------------------+
//	                   (probe fails) ------------------------------> Open
//
// A sliding window of recent outcomes drives the error rate instead of
// a fixed counter, so a burst of failures is never silently lost to an
// unlucky reset boundary.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breakerConfig tunes when the helper stops calling a misbehaving LLM
// and how long it stays open before letting a half-open probe through.
type breakerConfig struct {
	ErrorRatePct   float64
	Window         time.Duration
	OpenDuration   time.Duration
	HalfOpenProbes int
}

func defaultBreakerConfig() breakerConfig {
	return breakerConfig{
		ErrorRatePct:   50,
		Window:         time.Minute,
		OpenDuration:   10 * time.Second,
		HalfOpenProbes: 1,
	}
}

// breaker protects the pipeline from hammering a failing LLM provider
// across many files: once it trips, Verify degrades every subsequent
// call to "unavailable" for the rest of the open window instead of
// waiting out each call's own timeout one file at a time.
type breaker struct {
	cfg            breakerConfig
	state          breakerState
	successes      []time.Time
	failures       []time.Time
	openedAt       time.Time
	halfOpenProbes int
	halfOpenOK     int
}

func newBreaker(cfg breakerConfig) *breaker {
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &breaker{cfg: cfg}
}

// allow reports whether a call should proceed. The caller (Verify) is
// always single-flight per file, so this breaker does not need its own
// mutex: one helper instance is used by one orchestrator's sequential
// verification sub-phase, never concurrently.
func (b *breaker) allow() bool {
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = breakerHalfOpen
			b.halfOpenProbes = 1
			b.halfOpenOK = 0
			return true
		}
		return false
	case breakerHalfOpen:
		if b.halfOpenProbes < b.cfg.HalfOpenProbes {
			b.halfOpenProbes++
			return true
		}
		return false
	}
	return true
}

func (b *breaker) recordSuccess() {
	now := time.Now()
	switch b.state {
	case breakerClosed:
		b.successes = append(b.successes, now)
		b.trimWindow(now)
	case breakerHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenProbes {
			b.state = breakerClosed
			b.successes = b.successes[:0]
			b.failures = b.failures[:0]
		}
	}
}

func (b *breaker) recordFailure() {
	now := time.Now()
	switch b.state {
	case breakerClosed:
		b.failures = append(b.failures, now)
		b.trimWindow(now)
		b.checkThreshold(now)
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = now
	}
}

func (b *breaker) trimWindow(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	b.successes = trimBefore(b.successes, cutoff)
	b.failures = trimBefore(b.failures, cutoff)
}

func (b *breaker) checkThreshold(now time.Time) {
	total := len(b.successes) + len(b.failures)
	if total == 0 {
		return
	}
	errorPct := float64(len(b.failures)) / float64(total) * 100
	if errorPct >= b.cfg.ErrorRatePct {
		b.state = breakerOpen
		b.openedAt = now
	}
}

// stateValue reports the breaker's current state as the small integer
// metrics.SetLLMCircuitState expects (0=closed, 1=open, 2=half_open).
func (b *breaker) stateValue() int {
	return int(b.state)
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	copy(times, times[i:])
	return times[:len(times)-i]
}
