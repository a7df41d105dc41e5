package gridauth

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// DefaultSessionCookieName holds the session token in browsers
const DefaultSessionCookieName = "gridauth_session"

// Keys in the flow session (scs) shared with the provider packages
const (
	FlowKeyOAuthState  = "oauthState"
	FlowKeyCallbackURL = "oauthCallbackURL"
)

// AuthErrorHandler lets the host app render auth errors itself (e.g. re-render
// the form). Returning false falls back to the JSON response.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool

// WebAuth exposes GridAuth over HTTP: sign-up, sign-in, logout, session
// lookup and the federated provider callbacks.
type WebAuth struct {
	Auth *GridAuth

	// Short lived server side state for the OAuth/SAML round trips
	Flow *scs.SessionManager

	Middleware Middleware

	// All the domains where the session cookie is set on login and cleared on logout
	CookieDomains []string
	SecureCookies bool

	SignInURL      string
	AfterLoginURL  string
	AfterLogoutURL string

	OnSignupError AuthErrorHandler
	OnLoginError  AuthErrorHandler

	// Replaces the built in sign-in page; executed with SignInPageData
	SignInPage *template.Template

	router    *mux.Router
	providers []string
}

func NewWebAuth(auth *GridAuth) *WebAuth {
	return (&WebAuth{Auth: auth}).EnsureDefaults()
}

func (a *WebAuth) EnsureDefaults() *WebAuth {
	if a.Flow == nil {
		a.Flow = scs.New()
		a.Flow.Lifetime = 10 * time.Minute
		a.Flow.Cookie.Name = "gridauth_flow"
		a.Flow.Cookie.HttpOnly = true
		a.Flow.Cookie.SameSite = http.SameSiteLaxMode
	}
	a.Flow.Cookie.Secure = a.SecureCookies
	if a.SignInURL == "" {
		a.SignInURL = "/sign-in"
	}
	if a.AfterLoginURL == "" {
		a.AfterLoginURL = "/dashboard"
	}
	if a.AfterLogoutURL == "" {
		a.AfterLogoutURL = "/"
	}
	a.Middleware.Auth = a.Auth
	if a.Middleware.SignInURL == "" {
		a.Middleware.SignInURL = a.SignInURL
	}
	if a.Middleware.SetToken == nil {
		a.Middleware.SetToken = a.setSessionCookie
	}
	a.Middleware.EnsureReasonableDefaults()
	return a
}

func (a *WebAuth) Handler() http.Handler {
	return a.setupRoutes().router
}

func (a *WebAuth) setupRoutes() *WebAuth {
	if a.router == nil {
		a.EnsureDefaults()
		a.router = mux.NewRouter()
		a.router.HandleFunc("/signup", a.HandleSignup).Methods(http.MethodPost)
		a.router.HandleFunc("/sign-in", a.HandleLogin).Methods(http.MethodPost)
		a.router.HandleFunc("/sign-in", a.HandleSignInPage).Methods(http.MethodGet)
		a.router.HandleFunc("/logout", a.HandleLogout).Methods(http.MethodGet, http.MethodPost)
		a.router.HandleFunc("/api/session", a.HandleSession).Methods(http.MethodGet)
	}
	return a
}

// AddProvider mounts a federated provider's handler under /auth/{name}/.
// The handler runs inside the flow session so it can keep state across the
// redirect to the provider and back.
func (a *WebAuth) AddProvider(name string, handler http.Handler) *WebAuth {
	a.setupRoutes()
	name = strings.Trim(name, "/")
	prefix := "/auth/" + name
	a.providers = append(a.providers, name)
	slog.Info("adding federated provider", "prefix", prefix)
	a.router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, a.Flow.LoadAndSave(handler)))
	// 308 keeps the method for clients that post to the bare prefix
	a.router.Handle(prefix, http.RedirectHandler(prefix+"/", http.StatusPermanentRedirect))
	return a
}

// CompleteFederatedLogin is called by provider handlers once the external
// identity is verified. It logs the user in and sends them back to where
// they started, or to AfterLoginURL.
func (a *WebAuth) CompleteFederatedLogin(identity ExternalIdentity, w http.ResponseWriter, r *http.Request) {
	token, err := a.Auth.Login(FederatedLogin{Identity: identity})
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) && IsUserError(authErr) {
			q := url.Values{"error": {authErr.Code}, "message": {authErr.Message}}
			http.Redirect(w, r, a.SignInURL+"?"+q.Encode(), http.StatusFound)
			return
		}
		slog.Error("federated login failed", "provider", identity.Provider, "err", err)
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}
	a.setSessionCookie(w, token)

	callbackURL := a.AfterLoginURL
	if v := a.Flow.PopString(r.Context(), FlowKeyCallbackURL); IsLocalRedirect(v) {
		callbackURL = v
	}
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

// HandleLogout clears the session cookie. The token itself stays valid until
// it expires.
func (a *WebAuth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	a.Auth.Logout()
	a.clearSessionCookie(w)
	to := r.URL.Query().Get("to")
	if !IsLocalRedirect(to) {
		to = a.AfterLogoutURL
	}
	http.Redirect(w, r, to, http.StatusFound)
}

// HandleSession returns the current session as JSON, or 401
func (a *WebAuth) HandleSession(w http.ResponseWriter, r *http.Request) {
	s, _, ok := a.Middleware.CurrentSession(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Not signed in"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *WebAuth) cookieDomains() []string {
	domains := a.CookieDomains
	if slices.Index(domains, "") < 0 { // default domain
		domains = append(slices.Clone(domains), "")
	}
	return domains
}

func (a *WebAuth) setSessionCookie(w http.ResponseWriter, token string) {
	ttl := a.Auth.Sessions.TTL()
	for _, domain := range a.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:     a.Middleware.SessionCookieName,
			Value:    token,
			Domain:   domain,
			Path:     "/",
			Expires:  time.Now().Add(ttl),
			MaxAge:   int(ttl / time.Second),
			HttpOnly: true,
			Secure:   a.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (a *WebAuth) clearSessionCookie(w http.ResponseWriter) {
	for _, domain := range a.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:     a.Middleware.SessionCookieName,
			Domain:   domain,
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   a.SecureCookies,
		})
	}
}

// IsLocalRedirect reports whether target is a same-origin path, which is the
// only kind of redirect target accepted from request parameters
func IsLocalRedirect(target string) bool {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// statusFor maps an auth error code to an HTTP status
func statusFor(err *AuthError) int {
	switch err.Code {
	case ErrCodeMissingField, ErrCodePasswordMismatch, ErrCodeWeakPassword:
		return http.StatusBadRequest
	case ErrCodeDuplicateAccount:
		return http.StatusConflict
	case ErrCodeInvalidCreds, ErrCodeLinkRefused:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("error writing response", "err", err)
	}
}

func writeAuthError(w http.ResponseWriter, err *AuthError) {
	writeJSON(w, statusFor(err), map[string]any{
		"error": err.Message,
		"code":  err.Code,
		"field": err.Field,
	})
}

// asAuthError turns storage and other unexpected errors into a generic 500
func asAuthError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &AuthError{Code: "internal_error", Message: "Something went wrong, please try again", Err: err}
}
