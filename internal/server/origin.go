// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// originChecker is built once per server instance from the configured
// allowlist and consulted on every WebSocket upgrade.
type originChecker struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginChecker(origins []string) *originChecker {
	oc := &originChecker{
		allowed: make(map[string]struct{}, len(origins)),
	}

	for _, origin := range origins {
		if origin == "*" {
			oc.allowAll = true
			continue
		}
		oc.allowed[origin] = struct{}{}
	}

	return oc
}

// check reports whether the request's origin is acceptable. Requests without
// an Origin header are allowed: command-line and test clients do not send
// one, and the header only exists to protect browser users.
func (oc *originChecker) check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return true
	}

	if oc.allowAll {
		return true
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		logrus.WithField("origin", originHeader).Warn("Blocked WebSocket connection with malformed origin")
		return false
	}

	if _, exists := oc.allowed[normalizedOrigin]; exists {
		return true
	}

	logrus.WithField("origin", originHeader).Warn("Blocked WebSocket connection from disallowed origin")
	return false
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			normalized = append(normalized, trimmed)
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			logrus.WithField("origin", origin).Warn("Ignoring invalid origin in configuration")
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}
