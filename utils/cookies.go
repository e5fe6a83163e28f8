package utils

import (
	"net/http"
	"time"
)

const (
	RefreshCookieName = "refreshToken"
	RefreshCookiePath = "/auth"
)

// CookieManager owns the refresh-token cookie. Attach and Clear always use
// the same name, path, domain and flags so browsers treat them as one cookie.
type CookieManager struct {
	secure bool
	domain string
	maxAge time.Duration
}

func NewCookieManager(secure bool, domain string, maxAge time.Duration) *CookieManager {
	return &CookieManager{secure: secure, domain: domain, maxAge: maxAge}
}

func (m *CookieManager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     RefreshCookiePath,
		Domain:   m.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	// The SPA is served cross-site in production; browsers drop
	// SameSite=None cookies that are not Secure.
	if m.secure {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func (m *CookieManager) Attach(w http.ResponseWriter, token string) {
	http.SetCookie(w, m.cookie(token, int(m.maxAge.Seconds())))
}

func (m *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie("", -1))
}

func (m *CookieManager) Read(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
