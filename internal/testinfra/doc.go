// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package testinfra provides test infrastructure for integration testing with containers.
//
// This package uses testcontainers-go to run the external services the
// relay talks to in production: Redis for the pub/sub bridge and PostgreSQL
// for presence persistence and the membership directory.
//
//	func TestRedisBridge(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    rc, err := testinfra.NewRedisContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, rc.Container)
//
//	    bridge, err := pubsub.NewRedisBridge(ctx, pubsub.RedisConfig{Addr: rc.Addr})
//	    // ...
//	}
//
// All files carry the integration build tag:
//
//	go test -tags integration ./...
package testinfra
