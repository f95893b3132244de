// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

/*
Package auth verifies the bearer tokens presented on websocket upgrade.

Token issuance happens elsewhere. This package only needs to turn a token
into a user id, behind the narrow Verifier interface:

	type Verifier interface {
	    Verify(ctx context.Context, token string) (userID string, err error)
	}

JWTVerifier accepts HS256 tokens whose "sub" claim is the user id. The
token is read from the Authorization header, the "token" query parameter
(browsers cannot set headers on a websocket upgrade) or the "token" cookie,
in that order.

Usage:

	v, err := auth.NewJWTVerifier(auth.Config{Secret: cfg.Auth.Secret, Issuer: "chat"})
	if err != nil {
	    return err
	}
	userID, err := v.Verify(ctx, auth.TokenFromRequest(r))
	switch {
	case errors.Is(err, auth.ErrNoCredentials):
	    // 401
	case errors.Is(err, auth.ErrExpiredCredentials):
	    // 401, client should refresh
	}
*/
package auth
