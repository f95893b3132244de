// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRateLimit(t *testing.T) {
	before := testutil.ToFloat64(RateLimitDecisions.WithLabelValues("test", "token_bucket", "rejected"))
	RecordRateLimit("test", "token_bucket", false)
	RecordRateLimit("test", "token_bucket", true)

	after := testutil.ToFloat64(RateLimitDecisions.WithLabelValues("test", "token_bucket", "rejected"))
	if after-before != 1 {
		t.Errorf("expected 1 rejection recorded, got %v", after-before)
	}
}

func TestRecordPublish(t *testing.T) {
	okBefore := testutil.ToFloat64(BusPublished.WithLabelValues("message", "success"))
	errBefore := testutil.ToFloat64(BusPublished.WithLabelValues("message", "error"))

	RecordPublish("message", nil)
	RecordPublish("message", errors.New("down"))

	if got := testutil.ToFloat64(BusPublished.WithLabelValues("message", "success")) - okBefore; got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(BusPublished.WithLabelValues("message", "error")) - errBefore; got != 1 {
		t.Errorf("expected 1 error, got %v", got)
	}
}

func TestRecordFlushDropped(t *testing.T) {
	before := testutil.ToFloat64(PresenceDroppedUpdates)
	RecordFlush("dropped", 7, 10*time.Millisecond)
	if got := testutil.ToFloat64(PresenceDroppedUpdates) - before; got != 7 {
		t.Errorf("expected 7 dropped updates, got %v", got)
	}
}

func TestRecordDelivery(t *testing.T) {
	before := testutil.ToFloat64(RouterDeliveries.WithLabelValues("direct", "delivered"))
	RecordDelivery("direct", "delivered", 20*time.Millisecond)
	if got := testutil.ToFloat64(RouterDeliveries.WithLabelValues("direct", "delivered")) - before; got != 1 {
		t.Errorf("expected 1 delivery, got %v", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("/healthz", "GET", "200"))
	RecordHTTPRequest("/healthz", "GET", 200, time.Millisecond)
	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues("/healthz", "GET", "200")) - before; got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
}
