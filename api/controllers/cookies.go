package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/medfarma-backend/internal/identity"
)

// SessionCookie writes the browser session cookies read by
// middleware.Authenticate. RefreshName is optional; without it the page
// session ends when the access token expires.
type SessionCookie struct {
	Name        string
	RefreshName string
	Secure      bool
}

func (c SessionCookie) Set(w http.ResponseWriter, token string, expires time.Time) {
	c.write(w, c.Name, token, expires)
}

// Persist writes the access cookie and, when configured, the refresh cookie.
func (c SessionCookie) Persist(w http.ResponseWriter, tokens *identity.Tokens) {
	if tokens == nil {
		return
	}
	c.Set(w, tokens.AccessToken, tokens.ExpiresAt)
	if tokens.RefreshToken != "" {
		c.write(w, c.RefreshName, tokens.RefreshToken, tokens.RefreshExpiresAt)
	}
}

func (c SessionCookie) Clear(w http.ResponseWriter) {
	c.clear(w, c.Name)
	c.clear(w, c.RefreshName)
}

func (c SessionCookie) write(w http.ResponseWriter, name, value string, expires time.Time) {
	if name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) clear(w http.ResponseWriter, name string) {
	if name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
