// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

/*
Package middleware provides chi-compatible HTTP middleware for the relay's
HTTP surface.

  - RequestID: X-Request-ID propagation, also used as the logging
    correlation ID for the request and any socket upgraded on it
  - PrometheusMetrics: request count, latency and in-flight gauge labeled
    by chi route pattern

Both wrap http.Handler and keep the response writer hijackable, so they can
sit in front of the /ws upgrade:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
