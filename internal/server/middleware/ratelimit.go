package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// IPRateLimit returns an HTTP middleware that caps requests per client IP
// per minute. It sits in front of the authorization pipeline as a coarse
// flood guard; per-principal tier limits are enforced later by the
// pipeline's charge stage against the shared counter store.
func IPRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
