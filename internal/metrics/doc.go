// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

/*
Package metrics holds the Prometheus collectors exported on /metrics.

Collectors are registered on the default registry at package init through
promauto, so importing the package is enough to expose them:

  - connection counts and rejections
  - router deliveries, ack timeouts and first-ack latency
  - bus publish/receive counters
  - presence transitions, queue depth and batch flush outcomes
  - rate limiter decisions and tracked identifiers
  - circuit breaker state and transitions

Components update collectors directly or through the Record helpers.
*/
package metrics
