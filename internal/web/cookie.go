// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package web

import (
	"net/http"
	"time"
)

// DefaultCookieName names the session cookie.
const DefaultCookieName = "YOUCHAT_SESSION"

// CookieOptions configures the session cookie.
type CookieOptions struct {
	Name   string
	Path   string
	Secure bool
}

// DefaultCookieOptions returns an HttpOnly cookie scoped to /api.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{Name: DefaultCookieName, Path: "/api"}
}

func (o CookieOptions) token(r *http.Request) string {
	c, err := r.Cookie(o.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (o CookieOptions) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     o.Name,
		Value:    token,
		Path:     o.Path,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o CookieOptions) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     o.Path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
