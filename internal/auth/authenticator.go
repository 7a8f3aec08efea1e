// Package auth implements HS256 token verification and identity claim
// extraction for incoming connections.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated principal attached to a connection. It is
// derived once from a verified token and is immutable for the connection's
// lifetime.
type Identity struct {
	UserID   string
	UserName string
}

// TokenClaims is the payload shape the identity issuer signs. The user id is
// carried in the registered subject claim with "userId" as a fallback.
type TokenClaims struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the verification settings for an Authenticator.
type Config struct {
	Secret string
	// Issuer and Audience, when non-empty, are compared against the
	// token's registered claims. A mismatch is a warning in lax mode and
	// a hard ErrInvalidPayload failure in strict mode.
	Issuer       string
	Audience     string
	StrictClaims bool
}

// Authenticator verifies bearer tokens against a server-held HS256 secret.
type Authenticator struct {
	config Config
	parser *jwt.Parser
}

// New creates an Authenticator. It returns ErrServerMisconfigured when the
// signing secret is empty, which callers must treat as fatal for the whole
// listening service.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, ErrServerMisconfigured
	}

	// Pinning the accepted algorithm prevents algorithm-confusion attacks;
	// any non-HS256 token is rejected before signature verification.
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return &Authenticator{config: cfg, parser: parser}, nil
}

// StrictClaims reports whether issuer/audience mismatches are hard failures.
func (a *Authenticator) StrictClaims() bool {
	return a.config.StrictClaims
}

// Authenticate extracts the credential from the handshake request and
// verifies it, returning the resulting Identity.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	token, err := ExtractToken(r)
	if err != nil {
		return Identity{}, err
	}
	return a.Verify(token)
}

// Verify checks the token signature, expiry, and identity claims. Errors map
// onto the package sentinels so callers can classify failures with errors.Is.
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	token, err := a.parser.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.config.Secret), nil
	})
	if err != nil {
		return Identity{}, classifyParseError(err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrMalformedToken
	}

	// The library already validates exp, but the expiry is checked
	// explicitly as well so the taxonomy does not depend on parser options.
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return Identity{}, ErrTokenExpired
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: missing user identification", ErrInvalidPayload)
	}
	if claims.Name == "" {
		return Identity{}, fmt.Errorf("%w: missing user name", ErrInvalidPayload)
	}

	if err := a.checkRegisteredClaims(claims); err != nil {
		return Identity{}, err
	}

	return Identity{UserID: userID, UserName: claims.Name}, nil
}

// checkRegisteredClaims compares issuer and audience against the configured
// expectations. Mismatches are warnings unless strict mode is active.
func (a *Authenticator) checkRegisteredClaims(claims *TokenClaims) error {
	if a.config.Issuer != "" && claims.Issuer != "" && claims.Issuer != a.config.Issuer {
		if a.config.StrictClaims {
			return fmt.Errorf("%w: issuer mismatch", ErrInvalidPayload)
		}
		slog.Warn("Token issuer mismatch", "got", claims.Issuer, "want", a.config.Issuer)
	}

	if a.config.Audience != "" && len(claims.Audience) > 0 && !containsAudience(claims.Audience, a.config.Audience) {
		if a.config.StrictClaims {
			return fmt.Errorf("%w: audience mismatch", ErrInvalidPayload)
		}
		slog.Warn("Token audience mismatch", "got", claims.Audience, "want", a.config.Audience)
	}

	return nil
}

func containsAudience(audience jwt.ClaimStrings, want string) bool {
	for _, aud := range audience {
		if aud == want {
			return true
		}
	}
	return false
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	default:
		return ErrMalformedToken
	}
}
