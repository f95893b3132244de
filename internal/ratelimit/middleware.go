// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/models"
)

// Response headers carrying rate limit metadata. They are set on every
// response, admitted or not.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"       // epoch ms
	HeaderRetryAfter = "X-RateLimit-Retry-After" // ms
)

// WriteHeaders sets the rate limit headers for res.
func WriteHeaders(h http.Header, res Result) {
	h.Set(HeaderLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(res.ResetMs(), 10))
	h.Set(HeaderRetryAfter, strconv.FormatInt(res.RetryAfterMs(), 10))
}

// Metadata converts res into the socket representation.
func Metadata(res Result) *models.RateLimitMetadata {
	return &models.RateLimitMetadata{
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		Reset:      res.ResetMs(),
		RetryAfter: res.RetryAfterMs(),
	}
}

// Middleware admits requests through l keyed by keyFn and answers 429 with
// a JSON error body when the limit is exceeded. A nil keyFn keys by client IP.
func Middleware(l Limiter, keyFn httprate.KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = httprate.KeyByIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := keyFn(r)
			if err != nil {
				logging.Warn().Err(err).Msg("Rate limit key extraction failed")
				http.Error(w, http.StatusText(http.StatusPreconditionRequired), http.StatusPreconditionRequired)
				return
			}

			res := l.Allow(key, time.Now())
			WriteHeaders(w.Header(), res)
			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retrySecs := (res.RetryAfter + time.Second - 1) / time.Second
			w.Header().Set("Retry-After", strconv.FormatInt(int64(retrySecs), 10))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(models.ErrorPayload{
				Code:    models.ErrCodeRateLimited,
				Message: "Too many requests",
				Details: map[string]interface{}{
					"limit":       res.Limit,
					"remaining":   res.Remaining,
					"reset":       res.ResetMs(),
					"retry-after": res.RetryAfterMs(),
				},
			})
		})
	}
}
