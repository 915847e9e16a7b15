package metrics

import "time"

// Status labels for compile_requests_total.
const (
	StatusSuccess        = "success"
	StatusRateLimited    = "rate_limited"
	StatusActiveRequest  = "active_request_exists"
	StatusInvalidBody    = "invalid_body"
	StatusDisallowedWord = "disallowed_word"
	StatusBuildFailed    = "build_failed"
	StatusBadCode        = "bad_code"
	StatusOverloaded     = "overloaded"
	StatusInternal       = "internal"
)

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// Recorder receives compile service events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	IncRequest(status string)
	IncRequestOptions(version, channel string)
	IncCacheLookup(result string)
	ObserveRequestDuration(d time.Duration)
	IncTeardownFailure()
}

// NoopRecorder is a Recorder that does nothing (default when metrics are disabled).
type NoopRecorder struct{}

func (NoopRecorder) IncRequest(string)                    {}
func (NoopRecorder) IncRequestOptions(string, string)     {}
func (NoopRecorder) IncCacheLookup(string)                {}
func (NoopRecorder) ObserveRequestDuration(time.Duration) {}
func (NoopRecorder) IncTeardownFailure()                  {}
