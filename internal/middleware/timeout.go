package middleware

import (
	"net/http"
	"time"
)

const defaultRequestTimeout = 15 * time.Second

// Timeout bounds a whole request. Store calls inside carry their own
// shorter deadline.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	message := `{"success":false,"error":{"code":"REQUEST_TIMEOUT","message":"Request timed out"}}`

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, message)
	}
}
