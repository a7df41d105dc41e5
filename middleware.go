package gridauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type sessionContextKey struct{}

// ContextWithSession returns a context carrying s
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached by the middleware or the gRPC interceptor
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// Middleware attaches or enforces sessions on HTTP handlers
type Middleware struct {
	Auth *GridAuth

	SessionCookieName   string
	AuthTokenHeaderName string

	// Where EnsureSession sends visitors without a session. Empty means respond 401.
	SignInURL        string
	CallbackURLParam string

	// When set, a session older than RefreshAfter gets a fresh token written back
	RefreshAfter time.Duration
	SetToken     func(w http.ResponseWriter, token string)
}

func (m *Middleware) EnsureReasonableDefaults() {
	if m.SessionCookieName == "" {
		m.SessionCookieName = DefaultSessionCookieName
	}
	if m.AuthTokenHeaderName == "" {
		m.AuthTokenHeaderName = "Authorization"
	}
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = "callbackURL"
	}
}

// tokensFromRequest returns bearer tokens from the header first, then cookies
func (m *Middleware) tokensFromRequest(r *http.Request) []string {
	var tokens []string
	for _, h := range r.Header.Values(m.AuthTokenHeaderName) {
		h = strings.TrimSpace(h)
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			h = strings.TrimSpace(h[7:])
		}
		if h != "" {
			tokens = append(tokens, h)
		}
	}
	for _, cookie := range r.CookiesNamed(m.SessionCookieName) {
		if cookie.Value != "" {
			tokens = append(tokens, cookie.Value)
		}
	}
	return tokens
}

// CurrentSession returns the first valid session presented by r
func (m *Middleware) CurrentSession(r *http.Request) (*Session, string, bool) {
	if s, ok := SessionFromContext(r.Context()); ok {
		return s, "", true
	}
	for _, token := range m.tokensFromRequest(r) {
		if s, ok := m.Auth.CurrentSession(token); ok {
			return s, token, true
		}
	}
	return nil, "", false
}

func (m *Middleware) maybeRefresh(w http.ResponseWriter, token string, s *Session) *Session {
	if m.RefreshAfter <= 0 || m.SetToken == nil || token == "" {
		return s
	}
	if m.Auth.Sessions.now().Sub(s.IssuedAt) < m.RefreshAfter {
		return s
	}
	fresh, refreshed, ok := m.Auth.Sessions.Refresh(token)
	if !ok {
		return s
	}
	m.SetToken(w, fresh)
	slog.Debug("refreshed session token", "account", s.Subject)
	return refreshed
}

// ExtractSession attaches the session to the request context when one is
// present. It never redirects; use EnsureSession for that.
func (m *Middleware) ExtractSession(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, token, ok := m.CurrentSession(r); ok {
			s = m.maybeRefresh(w, token, s)
			r = r.WithContext(ContextWithSession(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureSession only lets requests with a valid session through. Others are
// redirected to SignInURL with the original path as the callback.
func (m *Middleware) EnsureSession(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, token, ok := m.CurrentSession(r)
		if !ok {
			if m.SignInURL == "" {
				http.Error(w, "Login Required", http.StatusUnauthorized)
				return
			}
			encoded := strings.ReplaceAll(url.QueryEscape(r.URL.RequestURI()), "+", "%20")
			http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", m.SignInURL, m.CallbackURLParam, encoded), http.StatusFound)
			return
		}
		s = m.maybeRefresh(w, token, s)
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), s)))
	})
}
