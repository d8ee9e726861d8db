package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/talgya/brushsim/internal/config"
)

const (
	sessionCookie = "site_auth"
	sessionMaxAge = 30 * 24 * 60 * 60 // seconds
)

// handleLogin checks the site password and sets the session cookie.
// The cookie carries the password digest itself, so any process configured
// with the same password accepts it.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	// A malformed body is treated as an empty password.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if s.AuthDigest == "" {
		http.Error(w, "Server not configured", http.StatusInternalServerError)
		return
	}
	if req.Password == "" || !digestEqual(config.HashPassword(req.Password), s.AuthDigest) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.AuthDigest,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Location", "/")
	w.WriteHeader(http.StatusFound)
}

// handleLogout clears the session cookie and sends the client back to the
// password page.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Location", "/password.html")
	w.WriteHeader(http.StatusFound)
}

// requireSession rejects requests without a valid session cookie. With no
// password configured every request passes.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AuthDigest == "" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		c, err := r.Cookie(sessionCookie)
		if err != nil || !digestEqual(c.Value, s.AuthDigest) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func digestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
