package engine

import (
	"fmt"
	"strconv"
	"time"
)

// HTTPError carries a non-200 classifier response.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed from Retry-After, 0 when absent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %.200s", e.Status, e.Body)
}

// Retryable reports whether the request may succeed on retry against the
// same endpoint (overload and rate-limit responses).
func (e *HTTPError) Retryable() bool {
	return e.Status == 503 || e.Status == 429
}

// ParseRetryAfter parses a Retry-After header value in seconds.
// Returns 0 for empty or unparseable values.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
