// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce the configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originChecker holds the normalized origin allow-list for one server instance.
type originChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

func newOriginChecker(origins []string) *originChecker {
	checker := &originChecker{
		allowed: make(map[string]struct{}, len(origins)),
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			checker.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			slog.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		checker.allowed[normalized] = struct{}{}
	}

	return checker
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (oc *originChecker) isOriginAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if oc.allowAll {
		return true
	}

	_, exists := oc.allowed[normalized]
	return exists
}

func (oc *originChecker) checkOrigin(r *http.Request) bool {
	if oc.isOriginAllowed(r) {
		return true
	}

	slog.Warn("Blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}
