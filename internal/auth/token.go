// Package auth locates the bearer credential on the handshake request.
package auth

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// ExtractToken locates a bearer credential on the upgrade request, trying in
// priority order: the "token" query parameter, the "authorization" query
// parameter, and the Authorization header. A "Bearer " prefix is stripped
// wherever present. It returns ErrMissingToken when no credential is found.
func ExtractToken(r *http.Request) (string, error) {
	query := r.URL.Query()

	if token := strings.TrimSpace(query.Get("token")); token != "" {
		return token, nil
	}

	if value := strings.TrimSpace(query.Get("authorization")); value != "" {
		return stripBearer(value), nil
	}

	if value := strings.TrimSpace(r.Header.Get("Authorization")); value != "" {
		return stripBearer(value), nil
	}

	return "", ErrMissingToken
}

func stripBearer(value string) string {
	if strings.HasPrefix(value, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(value, bearerPrefix))
	}
	return value
}
