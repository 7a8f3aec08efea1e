package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims TokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func validClaims() TokenClaims {
	return TokenClaims{
		Name: "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrServerMisconfigured) {
		t.Errorf("New() with empty secret error = %v, want ErrServerMisconfigured", err)
	}

	if _, err := New(Config{Secret: testSecret}); err != nil {
		t.Errorf("New() with secret error = %v", err)
	}
}

func TestVerifyValidToken(t *testing.T) {
	authenticator, err := New(Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims())

	identity, err := authenticator.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.UserID != "user-1" {
		t.Errorf("identity.UserID = %q, want %q", identity.UserID, "user-1")
	}
	if identity.UserName != "Alice" {
		t.Errorf("identity.UserName = %q, want %q", identity.UserName, "Alice")
	}
}

func TestVerifySubjectFallsBackToUserIDClaim(t *testing.T) {
	authenticator, _ := New(Config{Secret: testSecret})

	claims := validClaims()
	claims.Subject = ""
	claims.UserID = "custom-42"
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	identity, err := authenticator.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.UserID != "custom-42" {
		t.Errorf("identity.UserID = %q, want %q", identity.UserID, "custom-42")
	}
}

func TestVerifySubjectWinsOverUserIDClaim(t *testing.T) {
	authenticator, _ := New(Config{Secret: testSecret})

	claims := validClaims()
	claims.UserID = "custom-42"
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	identity, err := authenticator.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.UserID != "user-1" {
		t.Errorf("identity.UserID = %q, want %q", identity.UserID, "user-1")
	}
}

func TestVerifyFailures(t *testing.T) {
	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return signToken(t, "another-secret", jwt.SigningMethodHS256, validClaims())
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name: "wrong signing algorithm",
			token: func(t *testing.T) string {
				return signToken(t, testSecret, jwt.SigningMethodHS512, validClaims())
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				claims := validClaims()
				claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				return signToken(t, testSecret, jwt.SigningMethodHS256, claims)
			},
			wantErr: ErrTokenExpired,
		},
		{
			name: "missing user name claim",
			token: func(t *testing.T) string {
				claims := validClaims()
				claims.Name = ""
				return signToken(t, testSecret, jwt.SigningMethodHS256, claims)
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "missing user identification",
			token: func(t *testing.T) string {
				claims := validClaims()
				claims.Subject = ""
				claims.UserID = ""
				return signToken(t, testSecret, jwt.SigningMethodHS256, claims)
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "garbage token",
			token: func(t *testing.T) string {
				return "not.a.token"
			},
			wantErr: ErrMalformedToken,
		},
		{
			name: "empty token",
			token: func(t *testing.T) string {
				return ""
			},
			wantErr: ErrMalformedToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authenticator, err := New(Config{Secret: testSecret})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			_, err = authenticator.Verify(tt.token(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyIssuerAudienceLaxMode(t *testing.T) {
	authenticator, _ := New(Config{
		Secret:   testSecret,
		Issuer:   "chatrelay",
		Audience: "chatrelay-clients",
	})

	claims := validClaims()
	claims.Issuer = "someone-else"
	claims.Audience = jwt.ClaimStrings{"other-app"}
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	// Mismatches are logged as warnings but are not fatal in lax mode.
	if _, err := authenticator.Verify(token); err != nil {
		t.Errorf("Verify() in lax mode error = %v, want nil", err)
	}
}

func TestVerifyIssuerAudienceStrictMode(t *testing.T) {
	authenticator, _ := New(Config{
		Secret:       testSecret,
		Issuer:       "chatrelay",
		Audience:     "chatrelay-clients",
		StrictClaims: true,
	})

	claims := validClaims()
	claims.Issuer = "someone-else"
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)
	if _, err := authenticator.Verify(token); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Verify() strict issuer mismatch error = %v, want ErrInvalidPayload", err)
	}

	claims = validClaims()
	claims.Audience = jwt.ClaimStrings{"other-app"}
	token = signToken(t, testSecret, jwt.SigningMethodHS256, claims)
	if _, err := authenticator.Verify(token); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Verify() strict audience mismatch error = %v, want ErrInvalidPayload", err)
	}
}

func newRequestWithToken(t *testing.T, token string) *http.Request {
	t.Helper()
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestAuthenticateFromRequest(t *testing.T) {
	authenticator, _ := New(Config{Secret: testSecret})
	token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims())

	r := newRequestWithToken(t, token)
	identity, err := authenticator.Authenticate(r)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if identity.UserID != "user-1" || identity.UserName != "Alice" {
		t.Errorf("Authenticate() identity = %+v", identity)
	}
}
