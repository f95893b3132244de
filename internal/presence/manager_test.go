// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package presence

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/models"
	"github.com/tomtom215/chatrelay/internal/pubsub"
	"github.com/tomtom215/chatrelay/internal/resilience"
	"github.com/tomtom215/chatrelay/internal/storage"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSockets struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeSockets) set(userID string, n int) {
	f.mu.Lock()
	f.counts[userID] = n
	f.mu.Unlock()
}

func (f *fakeSockets) SocketCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[userID]
}

type fixture struct {
	m       *Manager
	clock   *fakeClock
	sockets *fakeSockets
	store   *storage.MemoryStore
	sleeps  []time.Duration
	updates chan *models.PresenceUpdate
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		clock:   &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		sockets: &fakeSockets{counts: make(map[string]int)},
		store:   storage.NewMemoryStore(),
		updates: make(chan *models.PresenceUpdate, 64),
	}

	bus := pubsub.NewMemoryBridge()
	t.Cleanup(func() { _ = bus.Close() })
	channels := pubsub.NewChannels("")
	err := bus.Subscribe(context.Background(), channels.Presence(), func(_ context.Context, _ string, env *models.Envelope) {
		f.updates <- env.Presence
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	f.m = NewManager(cfg, Deps{
		Sockets:  f.sockets,
		Store:    f.store,
		Breaker:  resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: t.Name(), Threshold: 100, Timeout: time.Second}),
		Bus:      bus,
		Channels: channels,
		Origin:   "test",
	}, WithClock(f.clock.Now))
	f.m.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

func (f *fixture) nextUpdate(t *testing.T) *models.PresenceUpdate {
	t.Helper()
	select {
	case u := <-f.updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no presence update published")
		return nil
	}
}

func TestManager_HeartbeatGoesOnline(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.sockets.set("alice", 1)
	f.m.Connected(ctx, "alice")

	e, ok := f.m.Status("alice")
	if !ok || e.Status != models.PresenceOnline {
		t.Fatalf("Status = %+v, %v; want online", e, ok)
	}
	u := f.nextUpdate(t)
	if u.UserID != "alice" || u.Status != models.PresenceOnline {
		t.Errorf("published %+v", u)
	}
	if f.m.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", f.m.Pending())
	}

	// A second heartbeat while online is not a transition.
	f.clock.Advance(time.Second)
	f.m.Heartbeat(ctx, "alice")
	if f.m.Pending() != 1 {
		t.Errorf("Pending after repeat heartbeat = %d, want 1", f.m.Pending())
	}
	if e, _ := f.m.Status("alice"); !e.LastSeen.Equal(f.clock.Now()) {
		t.Errorf("LastSeen not refreshed: %v", e.LastSeen)
	}
}

func TestManager_SweepOffline(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.sockets.set("bob", 1)
	f.m.Connected(ctx, "bob")
	f.nextUpdate(t)

	f.sockets.set("bob", 0)
	f.m.Disconnected(ctx, "bob")

	f.clock.Advance(59 * time.Second)
	if changes := f.m.Sweep(ctx, f.clock.Now()); len(changes) != 0 {
		t.Fatalf("sweep before threshold changed %v", changes)
	}

	f.clock.Advance(2 * time.Second)
	changes := f.m.Sweep(ctx, f.clock.Now())
	if len(changes) != 1 || changes[0].Status != models.PresenceOffline {
		t.Fatalf("changes = %+v, want one offline", changes)
	}
	if _, ok := f.m.Status("bob"); ok {
		t.Error("offline user must be evicted from the cache")
	}
	if f.m.CachedUsers() != 0 {
		t.Errorf("CachedUsers = %d", f.m.CachedUsers())
	}
	if u := f.nextUpdate(t); u.Status != models.PresenceOffline {
		t.Errorf("published %+v, want offline", u)
	}

	// Idempotent: nothing left to transition.
	if changes := f.m.Sweep(ctx, f.clock.Now()); len(changes) != 0 {
		t.Errorf("second sweep changed %v", changes)
	}
}

func TestManager_HeartbeatReannouncesAfterOfflineThreshold(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.sockets.set("alice", 1)
	f.m.Connected(ctx, "alice")
	f.nextUpdate(t)

	f.clock.Advance(20 * time.Second)
	f.m.Heartbeat(ctx, "alice")
	select {
	case u := <-f.updates:
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(50 * time.Millisecond):
	}

	f.clock.Advance(45 * time.Second)
	f.m.Heartbeat(ctx, "alice")
	u := f.nextUpdate(t)
	if u.UserID != "alice" || u.Status != models.PresenceOnline {
		t.Errorf("re-announced %+v", u)
	}
	if e, _ := f.m.Status("alice"); !e.Announced.Equal(f.clock.Now()) {
		t.Errorf("Announced = %v, want %v", e.Announced, f.clock.Now())
	}
}

func TestManager_RemoteDropsUserThatMovedAway(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	// bob left this instance and reconnected on another.
	f.sockets.set("bob", 1)
	f.m.Connected(ctx, "bob")
	f.nextUpdate(t)
	f.sockets.set("bob", 0)
	f.m.Disconnected(ctx, "bob")

	online := &models.PresenceUpdate{UserID: "bob", Status: models.PresenceOnline, LastSeen: f.clock.Now()}
	f.m.Remote(ctx, "test", online)
	if _, ok := f.m.Status("bob"); !ok {
		t.Fatal("own announcement should not drop the user")
	}

	f.m.Remote(ctx, "other-instance", online)
	if _, ok := f.m.Status("bob"); ok {
		t.Fatal("bob still cached after another instance announced him")
	}

	f.clock.Advance(2 * time.Minute)
	if changes := f.m.Sweep(ctx, f.clock.Now()); len(changes) != 0 {
		t.Errorf("sweep marked a moved user: %+v", changes)
	}

	// A local user with sockets is kept.
	f.sockets.set("carol", 1)
	f.m.Connected(ctx, "carol")
	f.m.Remote(ctx, "other-instance", &models.PresenceUpdate{UserID: "carol", Status: models.PresenceOnline})
	if _, ok := f.m.Status("carol"); !ok {
		t.Error("connected user dropped by remote update")
	}
}

func TestManager_SweepAway(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.sockets.set("carol", 2)
	f.m.Connected(ctx, "carol")

	f.clock.Advance(31 * time.Second)
	changes := f.m.Sweep(ctx, f.clock.Now())
	if len(changes) != 1 || changes[0].Status != models.PresenceAway {
		t.Fatalf("changes = %+v, want one away", changes)
	}
	if e, _ := f.m.Status("carol"); e.Status != models.PresenceAway {
		t.Errorf("cached status = %v", e.Status)
	}

	// Still connected: away persists, never offline.
	f.clock.Advance(10 * time.Minute)
	if changes := f.m.Sweep(ctx, f.clock.Now()); len(changes) != 0 {
		t.Errorf("away user with sockets changed: %v", changes)
	}

	f.m.Heartbeat(ctx, "carol")
	if e, _ := f.m.Status("carol"); e.Status != models.PresenceOnline {
		t.Errorf("heartbeat should restore online, got %v", e.Status)
	}
}

func TestManager_QueueCoalescesByUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.sockets.set("dave", 1)
	f.m.Connected(ctx, "dave")
	f.clock.Advance(31 * time.Second)
	f.m.Sweep(ctx, f.clock.Now())

	if f.m.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", f.m.Pending())
	}
	if err := f.m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	rec, ok, _ := f.store.LoadPresence(ctx, "dave")
	if !ok || rec.Status != models.PresenceAway {
		t.Errorf("persisted %+v, want away", rec)
	}
}

func TestManager_FlushBatchSize(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{MaxBatchSize: 2})
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3", "u4", "u5"} {
		f.m.Heartbeat(ctx, u)
	}
	if err := f.m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if f.m.Pending() != 3 {
		t.Errorf("Pending after one flush = %d, want 3", f.m.Pending())
	}
	if _, ok, _ := f.store.LoadPresence(ctx, "u1"); !ok {
		t.Error("oldest record should be flushed first")
	}
	if _, ok, _ := f.store.LoadPresence(ctx, "u3"); ok {
		t.Error("u3 should still be queued")
	}

	if err := f.m.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if f.m.Pending() != 0 {
		t.Errorf("Pending after FlushAll = %d", f.m.Pending())
	}
	if got := f.store.UpsertCalls(); got != 3 {
		t.Errorf("UpsertCalls = %d, want 3", got)
	}
}

func TestManager_FlushRetriesWithBackoff(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.m.Heartbeat(ctx, "erin")
	f.store.FailNextUpserts(2, errors.New("db down"))

	if err := f.m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !reflect.DeepEqual(f.sleeps, want) {
		t.Errorf("sleeps = %v, want %v", f.sleeps, want)
	}
	if _, ok, _ := f.store.LoadPresence(ctx, "erin"); !ok {
		t.Error("record should be persisted after retry")
	}
}

func TestManager_FlushDropsAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.m.Heartbeat(ctx, "frank")
	f.store.FailNextUpserts(10, errors.New("db down"))

	err := f.m.Flush(ctx)
	if !errors.Is(err, ErrBatchPersistence) {
		t.Fatalf("Flush = %v, want ErrBatchPersistence", err)
	}
	var berr *BatchError
	if !errors.As(err, &berr) || berr.Size != 1 || berr.Attempts != 3 {
		t.Errorf("BatchError = %+v", berr)
	}
	if got := f.store.UpsertCalls(); got != 3 {
		t.Errorf("UpsertCalls = %d, want 3", got)
	}
	if f.m.Pending() != 0 {
		t.Errorf("dropped batch must not be requeued, Pending = %d", f.m.Pending())
	}
}

func TestManager_FlushRequeuesOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	f.m.Heartbeat(context.Background(), "gina")
	f.store.FailNextUpserts(1, errors.New("db down"))

	ctx, cancel := context.WithCancel(context.Background())
	f.m.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	if err := f.m.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Flush = %v, want context.Canceled", err)
	}
	if f.m.Pending() != 1 {
		t.Errorf("Pending = %d, want batch requeued", f.m.Pending())
	}
}

func TestManager_Backoff(t *testing.T) {
	t.Parallel()
	m := NewManager(Config{}, Deps{})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := m.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestQueue_Requeue(t *testing.T) {
	t.Parallel()
	q := newQueue()
	q.push(models.PresenceRecord{UserID: "a", Status: models.PresenceOnline})
	q.push(models.PresenceRecord{UserID: "b", Status: models.PresenceOnline})

	batch := q.take(1)
	q.push(models.PresenceRecord{UserID: "c", Status: models.PresenceOnline})
	q.requeue(batch)

	got := q.take(10)
	var order []string
	for _, r := range got {
		order = append(order, r.UserID)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", order)
	}

	// A newer record wins over a requeued one.
	q.push(models.PresenceRecord{UserID: "a", Status: models.PresenceAway})
	q.requeue([]models.PresenceRecord{{UserID: "a", Status: models.PresenceOnline}})
	got = q.take(10)
	if len(got) != 1 || got[0].Status != models.PresenceAway {
		t.Errorf("requeue overwrote newer record: %+v", got)
	}
}
