// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package connection

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestManager_LimitAndRelease(t *testing.T) {
	t.Parallel()

	m := NewManager(2)
	if err := m.Register("s1", "alice"); err != nil {
		t.Fatalf("register s1: %v", err)
	}
	if err := m.Register("s2", "alice"); err != nil {
		t.Fatalf("register s2: %v", err)
	}

	err := m.Register("s3", "alice")
	if !errors.Is(err, ErrConnectionLimitExceeded) {
		t.Fatalf("expected ErrConnectionLimitExceeded, got %v", err)
	}
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Limit != 2 || limitErr.UserID != "alice" {
		t.Errorf("expected LimitError{alice, 2}, got %#v", err)
	}
	if _, ok := m.Owner("s3"); ok {
		t.Error("rejected socket must not be registered")
	}

	user, remaining, ok := m.Release("s1")
	if !ok || user != "alice" || remaining != 1 {
		t.Errorf("Release(s1) = %q, %d, %v", user, remaining, ok)
	}
	if got := m.Sockets("alice"); len(got) != 1 || got[0] != "s2" {
		t.Errorf("expected [s2], got %v", got)
	}
	if m.ConnectedUserCount() != 1 {
		t.Errorf("expected 1 connected user, got %d", m.ConnectedUserCount())
	}

	if _, remaining, _ := m.Release("s2"); remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", remaining)
	}
	if m.ConnectedUserCount() != 0 {
		t.Errorf("expected user removed, got %d connected", m.ConnectedUserCount())
	}
	if m.Sockets("alice") != nil {
		t.Error("expected no sockets for alice")
	}
}

func TestManager_ReleaseUnknown(t *testing.T) {
	t.Parallel()

	m := NewManager(0)
	if m.MaxPerUser() != DefaultMaxConnectionsPerUser {
		t.Errorf("expected default cap %d, got %d", DefaultMaxConnectionsPerUser, m.MaxPerUser())
	}
	if _, _, ok := m.Release("nope"); ok {
		t.Error("expected Release of unknown socket to report false")
	}
}

func TestManager_DuplicateSocket(t *testing.T) {
	t.Parallel()

	m := NewManager(3)
	_ = m.Register("s1", "alice")
	if err := m.Register("s1", "bob"); !errors.Is(err, ErrDuplicateSocket) {
		t.Errorf("expected ErrDuplicateSocket, got %v", err)
	}
	if owner, _ := m.Owner("s1"); owner != "alice" {
		t.Errorf("socket owner changed to %q", owner)
	}
}

func TestManager_Rooms(t *testing.T) {
	t.Parallel()

	m := NewManager(5)
	_ = m.Register("a1", "alice")
	_ = m.Register("a2", "alice")
	_ = m.Register("b1", "bob")

	room := GroupRoom("g1")
	for _, s := range []string{"a1", "a2", "b1"} {
		if err := m.Join(s, room); err != nil {
			t.Fatalf("join %s: %v", s, err)
		}
	}
	if err := m.Join("ghost", room); !errors.Is(err, ErrUnknownSocket) {
		t.Errorf("expected ErrUnknownSocket, got %v", err)
	}

	if got := m.RoomSocketsExcept(room, "alice"); len(got) != 1 || got[0] != "b1" {
		t.Errorf("expected [b1], got %v", got)
	}

	m.Release("b1")
	if got := m.RoomSockets(room); len(got) != 2 {
		t.Errorf("expected released socket to leave room, got %v", got)
	}
	if !m.Leave("a1", room) {
		t.Error("expected a1 to leave")
	}
	if m.Leave("a1", room) {
		t.Error("second leave should report false")
	}
	if got := m.SocketRooms("a2"); len(got) != 1 || got[0] != room {
		t.Errorf("expected a2 in %s, got %v", room, got)
	}
}

func TestManager_ConcurrentRegister(t *testing.T) {
	t.Parallel()

	m := NewManager(5)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.Register(fmt.Sprintf("s%d", i), "alice"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if accepted != 5 {
		t.Errorf("expected exactly 5 accepted registrations, got %d", accepted)
	}
	if m.SocketCount("alice") != 5 {
		t.Errorf("expected 5 sockets, got %d", m.SocketCount("alice"))
	}
}
