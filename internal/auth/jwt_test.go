// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "this_is_a_very_long_secret_key_for_testing_purposes_12345"

func newTestVerifier(t *testing.T, issuer string) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(Config{Secret: testSecret, Issuer: issuer})
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	return v
}

func TestNewJWTVerifier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"valid secret", testSecret, false},
		{"empty secret", "", true},
		{"short secret", "too-short", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, err := NewJWTVerifier(Config{Secret: tt.secret})
			if tt.wantErr {
				if err == nil {
					t.Error("NewJWTVerifier() expected error, got nil")
				}
				return
			}
			if err != nil || v == nil {
				t.Errorf("NewJWTVerifier() = %v, %v", v, err)
			}
		})
	}
}

func TestJWTVerifier_Verify(t *testing.T) {
	t.Parallel()
	v := newTestVerifier(t, "chat")
	other, err := NewJWTVerifier(Config{Secret: testSecret + "-other", Issuer: "chat"})
	if err != nil {
		t.Fatal(err)
	}

	valid, _ := v.Issue("alice", time.Hour)
	expired, _ := v.Issue("alice", -time.Minute)
	wrongKey, _ := other.Issue("alice", time.Hour)
	badSubject, _ := v.Issue("alice smith", time.Hour)
	wrongIssuer, _ := newTestVerifier(t, "someone-else").Issue("alice", time.Hour)

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "alice", Issuer: "chat",
	}).SignedString([]byte(testSecret))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject: "alice", Issuer: "chat", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name     string
		token    string
		wantUser string
		wantErr  error
	}{
		{"valid", valid, "alice", nil},
		{"empty", "", "", ErrNoCredentials},
		{"expired", expired, "", ErrExpiredCredentials},
		{"wrong key", wrongKey, "", ErrInvalidCredentials},
		{"malformed", "not.a.jwt", "", ErrInvalidCredentials},
		{"subject not an id", badSubject, "", ErrInvalidCredentials},
		{"wrong issuer", wrongIssuer, "", ErrInvalidCredentials},
		{"missing expiry", noExpiry, "", ErrInvalidCredentials},
		{"unexpected algorithm", hs512, "", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			user, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if user != tt.wantUser {
				t.Errorf("Verify() = %q, want %q", user, tt.wantUser)
			}
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"none", func(*http.Request) {}, ""},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") }, "abc"},
		{"basic header ignored", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, ""},
		{"query param", func(r *http.Request) { r.URL.RawQuery = "token=q1" }, "q1"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "c1"}) }, "c1"},
		{"header wins", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer h1")
			r.URL.RawQuery = "token=q1"
		}, "h1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			if got := TokenFromRequest(r); got != tt.want {
				t.Errorf("TokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}
