package resilience

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter interprets a Retry-After header value, supporting both the
// delta-seconds form ("120") and the HTTP-date form. Negative results are
// clamped to zero; an absent or unparsable header yields the fallback.
func ParseRetryAfter(header string, fallback time.Duration, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return fallback
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(header); err == nil {
		delta := at.Sub(now)
		if delta < 0 {
			return 0
		}
		return delta
	}

	return fallback
}

// ClampBackoff bounds a backoff delay into [min, max]. The worker applies it
// to marketplace-supplied Retry-After values before scheduling a retry.
func ClampBackoff(delay, min, max time.Duration) time.Duration {
	if delay < min {
		return min
	}
	if delay > max {
		return max
	}
	return delay
}
