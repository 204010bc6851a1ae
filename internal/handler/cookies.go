package handler

import (
	"net/http"
	"time"

	"chatbot-auth/internal/middleware"
	"chatbot-auth/internal/model"
)

const (
	refreshTokenCookie = "refreshToken"
	sessionFlagCookie  = "auth_session"
	lastActivityCookie = "last_activity"
)

// CookieSettings shape the session cookies for browser clients.
type CookieSettings struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieSettings) sameSite() http.SameSite {
	// Cross-site frontends need None, which browsers only accept with Secure.
	if c.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c CookieSettings) cookie(name string, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	}
}

func (c CookieSettings) setSession(w http.ResponseWriter, result model.AuthResult) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, result.AccessToken, c.AccessTTL, true))
	http.SetCookie(w, c.cookie(refreshTokenCookie, result.RefreshToken, c.RefreshTTL, true))
	http.SetCookie(w, c.cookie(sessionFlagCookie, "true", c.RefreshTTL, false))
}

func (c CookieSettings) clearSession(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookie, sessionFlagCookie, lastActivityCookie} {
		cleared := c.cookie(name, "", 0, name != sessionFlagCookie && name != lastActivityCookie)
		cleared.MaxAge = -1
		cleared.Expires = time.Unix(0, 0)
		http.SetCookie(w, cleared)
	}
}
