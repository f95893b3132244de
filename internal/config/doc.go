// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

/*
Package config loads and validates relay configuration using koanf v2.

Sources are layered, later ones winning:

 1. Built-in defaults
 2. A YAML file: $CONFIG_PATH, ./config.yaml or /etc/chatrelay/config.yaml
 3. Environment variables

Only the environment variables listed in envMappings are read. Common ones:

	HTTP_PORT            listen port (default 8080)
	LOG_LEVEL            trace, debug, info, warn, error (default info)
	MAX_CONNECTIONS      sockets per user (default 5)
	ACK_TIMEOUT          per-socket delivery ack timeout (default 3s)
	AWAY_THRESHOLD       idle time before away (default 30s)
	OFFLINE_THRESHOLD    idle time before offline (default 60s)
	BUS_BACKEND          memory, nats or redis (default memory)
	NATS_URL, NATS_EMBEDDED, REDIS_ADDR
	STORAGE_DRIVER       memory, pgx or duckdb (default memory)
	DATABASE_URL         DSN for the SQL drivers
	JWT_SECRET           HS256 key for socket tokens, at least 32 characters

Example YAML:

	server:
	  port: 8080
	  allowed_origins: ["https://chat.example.com"]
	bus:
	  backend: nats
	  nats_url: nats://nats:4222
	ratelimit:
	  messages:
	    algorithm: token_bucket
	    capacity: 30
	    rate: 1
	storage:
	  driver: pgx
	  dsn: postgres://relay@db/relay

Invalid configuration is reported by Load and is fatal at startup. The
accessor methods (Gateway, BreakerOptions, AuthOptions, NATSOptions,
RedisOptions) convert sections into the option structs of the packages that
consume them.
*/
package config
