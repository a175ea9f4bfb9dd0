// Package handlers contains the HTTP handlers mounted under /v1. Each handler
// declares the narrow service interfaces it depends on and registers its own
// routes through RegisterRoutes.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"docgate/internal/core"
	"docgate/internal/types"
)

// CookieConfig defines the attributes of cookies set by handlers.
type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	Path     string
}

// DefaultCookieConfig returns secure, host-only, SameSite=Lax cookies.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
}

func (c CookieConfig) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   int(maxAge.Seconds()),
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	})
}

// clear expires the cookie immediately.
func (c CookieConfig) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	})
}

// principal returns the caller resolved by the principal middleware.
func principal(r *http.Request) (types.Principal, error) {
	p, ok := types.GetPrincipal(r.Context())
	if !ok {
		return types.Principal{}, types.NewAppError(types.ErrCodeAuthPrincipalUnresolved, "could not identify caller", nil)
	}
	return p, nil
}

// accountUserID returns the signed-in user. Routes using it are wrapped in
// core.RequireAccount, so a miss is a wiring bug reported as 401.
func accountUserID(r *http.Request) (string, error) {
	p, err := principal(r)
	if err != nil {
		return "", err
	}
	if p.Kind != types.PrincipalAccount {
		return "", types.NewAppError(types.ErrCodeAuthTokenMissing, "sign in required", nil)
	}
	return p.UserID, nil
}

const maxOutputNameLen = 200

// SanitizeOutputName keeps [A-Za-z0-9._-], replaces every other rune with
// "_", strips leading dots and caps the length. An empty result falls back
// to def.
func SanitizeOutputName(name, def string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxOutputNameLen {
		out = out[:maxOutputNameLen]
	}
	if strings.Trim(out, "_") == "" {
		return def
	}
	return out
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	core.JSON(w, r, status, core.APIResponse{Data: data})
}
