// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/chatrelay/internal/auth"
	"github.com/tomtom215/chatrelay/internal/connection"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/models"
	"github.com/tomtom215/chatrelay/internal/pubsub"
	"github.com/tomtom215/chatrelay/internal/ratelimit"
	"github.com/tomtom215/chatrelay/internal/resilience"
	"github.com/tomtom215/chatrelay/internal/router"
	"github.com/tomtom215/chatrelay/internal/storage"
	"github.com/tomtom215/chatrelay/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

const testSecret = "gateway-test-secret-with-at-least-32-chars"

type fixture struct {
	srv      *Server
	http     *httptest.Server
	store    *storage.MemoryStore
	verifier *auth.JWTVerifier
}

func newFixture(t *testing.T, opts ...func(*Config, *Deps)) *fixture {
	t.Helper()

	store := storage.NewMemoryStore()
	verifier, err := auth.NewJWTVerifier(auth.Config{Secret: testSecret})
	if err != nil {
		t.Fatal(err)
	}
	limiter, err := ratelimit.New(ratelimit.Config{Algorithm: ratelimit.FixedWindow, Limit: 100, Window: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		InstanceID: "test-instance",
		Router:     router.Config{AckTimeout: time.Second},
	}
	deps := Deps{
		Conns:          connection.NewManager(5),
		Bus:            pubsub.NewMemoryBridge(),
		Store:          store,
		Breaker:        resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: "storage"}),
		Verifier:       verifier,
		MessageLimiter: limiter,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	srv, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		hs.Close()
	})
	return &fixture{srv: srv, http: hs, store: store, verifier: verifier}
}

// testClient is the browser side of one socket. Its reader answers
// receive_message acks automatically and queues every frame.
type testClient struct {
	t      *testing.T
	conn   *gorilla.Conn
	writeM sync.Mutex
	frames chan *websocket.Frame
	closed chan error
	nextID uint64
}

func (f *fixture) dial(t *testing.T, user string) *testClient {
	t.Helper()
	token, err := f.verifier.Issue(user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?token=" + token
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &testClient{t: t, conn: conn, frames: make(chan *websocket.Frame, 64), closed: make(chan error, 1)}
	go c.read()
	return c
}

func (c *testClient) read() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed <- err
			return
		}
		var f websocket.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.Event == models.EventReceiveMessage && f.Ack != nil {
			c.write(`{"event":"ack","ack":` + uintString(*f.Ack) + `,"data":{"ok":true}}`)
		}
		c.frames <- &f
	}
}

func uintString(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (c *testClient) write(raw string) {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	_ = c.conn.WriteMessage(gorilla.TextMessage, []byte(raw))
}

// emit sends event with data and an ack id, returning the id.
func (c *testClient) emit(event string, data any) uint64 {
	c.t.Helper()
	c.nextID++
	b, err := json.Marshal(map[string]any{"event": event, "data": data, "ack": c.nextID})
	if err != nil {
		c.t.Fatal(err)
	}
	c.write(string(b))
	return c.nextID
}

// expect waits for the next frame matching event (and ack id, if non-zero),
// skipping others.
func (c *testClient) expect(event string, ack uint64) *websocket.Frame {
	c.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-c.frames:
			if f.Event != event {
				continue
			}
			if ack != 0 && (f.Ack == nil || *f.Ack != ack) {
				continue
			}
			return f
		case err := <-c.closed:
			c.t.Fatalf("connection closed waiting for %s: %v", event, err)
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", event)
		}
	}
}

// none asserts no frame for event arrives within d.
func (c *testClient) none(event string, d time.Duration) {
	c.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case f := <-c.frames:
			if f.Event == event {
				c.t.Fatalf("unexpected %s frame: %s", event, f.Data)
			}
		case <-deadline:
			return
		}
	}
}

// ready round-trips a heartbeat so the socket is known to be registered.
func (c *testClient) ready() *testClient {
	c.t.Helper()
	c.expect(models.EventAck, c.emit(EventHeartbeat, nil))
	return c
}

func directMessage(to, content string) map[string]any {
	return map[string]any{"chatId": to, "conversationType": "direct", "receiverId": to, "content": content}
}

func TestGateway_RejectsUnauthenticatedUpgrade(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, query := range []string{"", "?token=garbage"} {
		url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws" + query
		_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("%q: upgrade accepted", query)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%q: response %v, want 401", query, resp)
		}
		if resp != nil {
			resp.Body.Close()
		}
	}
}

func TestGateway_DirectMessageRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.dial(t, "alice").ready()
	bob := f.dial(t, "bob").ready()

	ack := alice.emit(models.EventSendMessage, directMessage("bob", "hello bob"))
	reply := alice.expect(models.EventAck, ack)

	var resp models.SendMessageResponse
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		t.Fatalf("ack data %s: %v", reply.Data, err)
	}
	if !resp.OK || resp.Message == nil || resp.Message.ID == "" || resp.Message.Status != models.StatusSent {
		t.Fatalf("send reply = %s", reply.Data)
	}
	if resp.RateLimit == nil || resp.RateLimit.Limit != 100 || resp.RateLimit.Remaining != 99 {
		t.Errorf("rate limit metadata = %+v", resp.RateLimit)
	}

	got := bob.expect(models.EventReceiveMessage, 0)
	var msg models.Message
	if err := json.Unmarshal(got.Data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID != resp.Message.ID || msg.Content != "hello bob" || msg.SenderID != "alice" {
		t.Errorf("bob received %+v", msg)
	}

	status := alice.expect(models.EventMessageStatus, 0)
	var delivered models.Ack
	if err := json.Unmarshal(status.Data, &delivered); err != nil {
		t.Fatal(err)
	}
	if delivered.MessageID != msg.ID || delivered.Status != models.StatusDelivered {
		t.Errorf("status = %+v", delivered)
	}

	// Bob reads it; alice sees READ.
	bob.emit(models.EventMessageStatus, map[string]any{
		"messageId": msg.ID, "chatId": "alice", "conversationType": "direct",
		"senderId": "alice", "status": "READ",
	})
	read := alice.expect(models.EventMessageStatus, 0)
	if !strings.Contains(string(read.Data), `"READ"`) {
		t.Errorf("expected READ status, got %s", read.Data)
	}
}

func TestGateway_MessageRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(_ *Config, d *Deps) {
		l, _ := ratelimit.New(ratelimit.Config{Algorithm: ratelimit.FixedWindow, Limit: 1, Window: time.Minute})
		d.MessageLimiter = l
	})
	alice := f.dial(t, "alice")

	alice.expect(models.EventAck, alice.emit(models.EventSendMessage, directMessage("bob", "one")))
	ack := alice.emit(models.EventSendMessage, directMessage("bob", "two"))
	alice.expect(models.EventError, 0)
	second := alice.expect(models.EventAck, ack)

	var resp models.SendMessageResponse
	if err := json.Unmarshal(second.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.OK || resp.Error == nil || resp.Error.Code != models.ErrCodeRateLimited {
		t.Fatalf("second send = %s", second.Data)
	}
	if resp.RateLimit == nil || resp.RateLimit.Remaining != 0 || resp.RateLimit.RetryAfter <= 0 {
		t.Errorf("rate limit metadata = %+v", resp.RateLimit)
	}
}

func TestGateway_ValidationAndUnknownEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.dial(t, "alice")

	tests := []struct {
		name  string
		event string
		data  any
		code  string
	}{
		{"missing content", models.EventSendMessage, map[string]any{"chatId": "bob", "conversationType": "direct", "receiverId": "bob"}, models.ErrCodeValidation},
		{"bad chat id", models.EventSendMessage, directMessage("bob smith", "hi"), models.ErrCodeValidation},
		{"direct without receiver", models.EventSendMessage, map[string]any{"chatId": "bob", "conversationType": "direct", "content": "x"}, models.ErrCodeValidation},
		{"status without sender", models.EventMessageStatus, map[string]any{"messageId": "m1", "chatId": "c1", "conversationType": "group", "status": "READ"}, models.ErrCodeValidation},
		{"unknown event", "do_magic", map[string]any{}, models.ErrCodeUnknownEvent},
	}
	for _, tt := range tests {
		reply := alice.expect(models.EventAck, alice.emit(tt.event, tt.data))
		if !strings.Contains(string(reply.Data), tt.code) {
			t.Errorf("%s: reply %s, want code %s", tt.name, reply.Data, tt.code)
		}
	}

	// The connection survives every failure.
	if reply := alice.expect(models.EventAck, alice.emit(EventHeartbeat, nil)); string(reply.Data) != `{"ok":true}` {
		t.Errorf("heartbeat reply = %s", reply.Data)
	}
}

func TestGateway_ConnectionLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Conns = connection.NewManager(1)
	})
	first := f.dial(t, "alice").ready()
	second := f.dial(t, "alice")

	errFrame := second.expect(models.EventError, 0)
	if !strings.Contains(string(errFrame.Data), models.ErrCodeConnectionLimit) {
		t.Errorf("error = %s", errFrame.Data)
	}
	select {
	case err := <-second.closed:
		if !gorilla.IsCloseError(err, gorilla.ClosePolicyViolation) {
			t.Errorf("close = %v, want policy violation", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("rejected socket not closed")
	}

	if got := f.srv.deps.Conns.SocketCount("alice"); got != 1 {
		t.Errorf("alice holds %d sockets, want 1", got)
	}
	first.ready()
}

func TestGateway_GroupRoomsAndTyping(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config, _ *Deps) {
		c.TypingRate = 0.001
		c.TypingBurst = 1
	})
	ctx := context.Background()
	for _, u := range []string{"alice", "bob"} {
		if err := f.store.AddGroupMember(ctx, "g1", u); err != nil {
			t.Fatal(err)
		}
	}

	alice := f.dial(t, "alice").ready()
	bob := f.dial(t, "bob").ready()
	carol := f.dial(t, "carol").ready()

	// carol is not a member and cannot join.
	reply := carol.expect(models.EventAck, carol.emit(models.EventJoinGroup, map[string]any{"groupId": "g1"}))
	if !strings.Contains(string(reply.Data), models.ErrCodeValidation) {
		t.Errorf("non-member join reply = %s", reply.Data)
	}

	// alice and bob were joined to g1 on connect.
	alice.expect(models.EventAck, alice.emit(models.EventSendMessage, map[string]any{
		"chatId": "g1", "conversationType": "group", "content": "hi team",
	}))
	bob.expect(models.EventReceiveMessage, 0)
	carol.none(models.EventReceiveMessage, 100*time.Millisecond)

	// Typing is throttled to one event here.
	typing := map[string]any{"chatId": "g1", "conversationType": "group", "isTyping": true}
	alice.emit(models.EventUserTyping, typing)
	alice.emit(models.EventUserTyping, typing)
	bob.expect(models.EventUserTyping, 0)
	bob.none(models.EventUserTyping, 150*time.Millisecond)

	// After leaving, bob no longer gets group traffic.
	bob.expect(models.EventAck, bob.emit(models.EventLeaveGroup, map[string]any{"groupId": "g1"}))
	alice.emit(models.EventSendMessage, map[string]any{"chatId": "g1", "conversationType": "group", "content": "anyone?"})
	bob.none(models.EventReceiveMessage, 150*time.Millisecond)
}

func TestGateway_GroupEventsRequireMembership(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob"} {
		if err := f.store.AddGroupMember(ctx, "g1", u); err != nil {
			t.Fatal(err)
		}
	}

	bob := f.dial(t, "bob").ready()
	carol := f.dial(t, "carol").ready()

	ack := carol.emit(models.EventSendMessage, map[string]any{
		"chatId": "g1", "conversationType": "group", "content": "spam from outsider",
	})
	carol.expect(models.EventError, 0)
	reply := carol.expect(models.EventAck, ack)

	var resp models.SendMessageResponse
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.OK || resp.Error == nil || resp.Error.Code != models.ErrCodeValidation {
		t.Fatalf("non-member send reply = %s", reply.Data)
	}
	bob.none(models.EventReceiveMessage, 150*time.Millisecond)

	typing := carol.expect(models.EventAck, carol.emit(models.EventUserTyping, map[string]any{
		"chatId": "g1", "conversationType": "group", "isTyping": true,
	}))
	if !strings.Contains(string(typing.Data), models.ErrCodeValidation) {
		t.Errorf("non-member typing reply = %s", typing.Data)
	}
	bob.none(models.EventUserTyping, 150*time.Millisecond)
}

func TestGateway_DisconnectNotifiesOtherSockets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	phone := f.dial(t, "alice").ready()
	laptop := f.dial(t, "alice").ready()
	bob := f.dial(t, "bob").ready()

	_ = phone.conn.Close()

	got := laptop.expect(models.EventSocketDisconnected, 0)
	var hint models.SocketDisconnected
	if err := json.Unmarshal(got.Data, &hint); err != nil {
		t.Fatal(err)
	}
	if hint.UserID != "alice" || hint.RemainingSockets != 1 || hint.SocketID == "" {
		t.Errorf("disconnect hint = %+v", hint)
	}
	if got.Ack != nil {
		t.Error("disconnect hint should not request an ack")
	}
	bob.none(models.EventSocketDisconnected, 100*time.Millisecond)

	_ = laptop.conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for f.srv.deps.Conns.SocketCount("alice") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("alice sockets not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGateway_Health(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dial(t, "alice").ready()

	resp, err := http.Get(f.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Bus != "memory" || h.Breaker != "closed" || h.Sockets != 1 || h.Users != 1 {
		t.Errorf("health = %+v", h)
	}

	metricsResp, err := http.Get(f.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer metricsResp.Body.Close()
	body, _ := io.ReadAll(metricsResp.Body)
	if !strings.Contains(string(body), "websocket_messages_received_total") {
		t.Error("metrics endpoint missing relay collectors")
	}
}

func TestGateway_UpgradeRateLimitHeaders(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(_ *Config, d *Deps) {
		l, _ := ratelimit.New(ratelimit.Config{Algorithm: ratelimit.FixedWindow, Limit: 1, Window: time.Minute})
		d.UpgradeLimiter = l
	})
	f.dial(t, "alice")

	token, _ := f.verifier.Issue("alice", time.Hour)
	_, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.http.URL, "http")+"/ws?token="+token, nil)
	if err == nil {
		t.Fatal("second upgrade should be rate limited")
	}
	if resp == nil {
		t.Fatal("no response")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", resp.StatusCode)
	}
	for _, h := range []string{ratelimit.HeaderLimit, ratelimit.HeaderRemaining, ratelimit.HeaderReset, ratelimit.HeaderRetryAfter, "Retry-After"} {
		if resp.Header.Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestGateway_Shutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.dial(t, "alice").ready()
	if f.srv.Presence().Pending() == 0 {
		t.Fatal("connect should have queued a presence update")
	}

	services := f.srv.Services()
	errs := make(chan error, len(services))
	for _, svc := range services {
		go func() { errs <- svc.Serve(context.Background()) }()
	}
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for range services {
		select {
		case err := <-errs:
			if !errors.Is(err, suture.ErrDoNotRestart) {
				t.Errorf("service returned %v, want do-not-restart", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("service still running after Shutdown")
		}
	}

	rec, ok, err := f.store.LoadPresence(ctx, "alice")
	if err != nil || !ok || rec.Status != models.PresenceOnline {
		t.Errorf("persisted presence = %+v ok=%v err=%v", rec, ok, err)
	}
	if f.srv.Presence().Pending() != 0 {
		t.Errorf("%d presence updates left after shutdown", f.srv.Presence().Pending())
	}

	select {
	case err := <-alice.closed:
		if !gorilla.IsCloseError(err, gorilla.CloseGoingAway) {
			t.Errorf("close = %v, want going-away", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("socket not closed by Shutdown")
	}

	if err := f.srv.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown = %v", err)
	}
	if err := f.srv.Start(ctx); err == nil {
		t.Error("Start after Shutdown should fail")
	}
}
