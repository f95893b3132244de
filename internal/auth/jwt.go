// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/chatrelay/internal/validation"
)

// MinSecretLength is the shortest accepted HS256 secret.
const MinSecretLength = 32

// Standard authentication errors
var (
	// ErrNoCredentials indicates no token was provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates the token was malformed, tampered or
	// carried an unusable subject.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates the token has expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// Verifier turns a bearer token into the id of the connecting user.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// Config configures JWT verification.
type Config struct {
	Secret string        `koanf:"secret"`
	Issuer string        `koanf:"issuer"`
	Leeway time.Duration `koanf:"leeway"`
}

// JWTVerifier validates HS256 tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier for cfg. The secret must be at least
// MinSecretLength bytes.
func NewJWTVerifier(cfg Config) (*JWTVerifier, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth secret must be at least %d characters", MinSecretLength)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &JWTVerifier{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify validates the signature, expiry and issuer of token and returns
// its subject.
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrNoCredentials
	}

	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredCredentials
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	if !validation.ValidChatID(claims.Subject) {
		return "", fmt.Errorf("%w: unusable subject %q", ErrInvalidCredentials, claims.Subject)
	}
	return claims.Subject, nil
}

// Issue signs a token for userID valid for ttl. It exists for tooling and
// tests; production tokens come from the identity service.
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// TokenCookie and TokenQueryParam name the non-header token locations.
const (
	TokenCookie     = "token"
	TokenQueryParam = "token"
)

// TokenFromRequest extracts the bearer token from the Authorization
// header, the token query parameter or the token cookie.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}

	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token
	}

	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
