package handler

import (
	"context"
	"net"
	"net/http"
	"strings"

	"chatbot-auth/internal/service"
)

const (
	clientHeader    = "X-Auth-Client"
	clientModeAPI   = "api"
	tokenTypeBearer = "Bearer"
)

// isAPIClient reports whether tokens travel in JSON bodies instead of cookies.
func isAPIClient(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get(clientHeader)), clientModeAPI)
}

// requestContext carries the caller address into the security events the
// service publishes.
func requestContext(r *http.Request) context.Context {
	return service.WithClientIP(r.Context(), clientIP(r))
}

func clientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}

	return strings.TrimSpace(r.RemoteAddr)
}
