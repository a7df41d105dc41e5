package gridauth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	ga "github.com/gridpicks/gridauth"
)

func setupTestWeb(t *testing.T) (*ga.WebAuth, *countingRepo, *testClock) {
	t.Helper()
	auth, repo, clock := setupTestAuth(t)
	return ga.NewWebAuth(auth), repo, clock
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func signupForm() url.Values {
	return url.Values{
		"firstName":       {"Ada"},
		"lastName":        {"Lovelace"},
		"email":           {"ada@example.com"},
		"password":        {"engine1"},
		"confirmPassword": {"engine1"},
		"favTeam":         {"Ferrari"},
		"favDriver":       {"Leclerc"},
	}
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == ga.DefaultSessionCookieName {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Expected a JSON error body, got %q: %v", rr.Body.String(), err)
	}
	return body
}

// TestSignupFlow covers the registration form end to end
func TestSignupFlow(t *testing.T) {
	web, repo, _ := setupTestWeb(t)
	h := web.Handler()

	rr := postForm(h, "/signup", signupForm())
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusSeeOther, rr.Code, rr.Body.String())
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Bad Location header: %v", err)
	}
	if loc.Path != "/sign-in" {
		t.Errorf("Expected redirect to /sign-in, got %q", loc.Path)
	}
	if msg := loc.Query().Get("message"); msg != "Account created successfully! Please sign in." {
		t.Errorf("Unexpected message %q", msg)
	}
	if sessionCookie(rr) != nil {
		t.Error("Expected signup not to log the user in")
	}

	account, err := repo.FindByEmail("ada@example.com")
	if err != nil {
		t.Fatalf("Expected the account to be stored, got %v", err)
	}
	if account.FavoriteTeam != "Ferrari" || account.FavoriteDriver != "Leclerc" {
		t.Errorf("Expected favorites from the form, got %q/%q", account.FavoriteTeam, account.FavoriteDriver)
	}
}

func TestSignupFlowErrors(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(f url.Values)
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"missing field", func(f url.Values) { f.Del("lastName") }, http.StatusBadRequest, ga.ErrCodeMissingField, "lastName"},
		{"mismatch", func(f url.Values) { f.Set("confirmPassword", "engine2") }, http.StatusBadRequest, ga.ErrCodePasswordMismatch, "confirmPassword"},
		{"weak password", func(f url.Values) { f.Set("password", "abc"); f.Set("confirmPassword", "abc") }, http.StatusBadRequest, ga.ErrCodeWeakPassword, "password"},
		{"duplicate", func(f url.Values) { f.Set("email", "ADA@example.com") }, http.StatusConflict, ga.ErrCodeDuplicateAccount, "email"},
	}

	web, _, _ := setupTestWeb(t)
	h := web.Handler()
	if rr := postForm(h, "/signup", signupForm()); rr.Code != http.StatusSeeOther {
		t.Fatalf("Initial signup failed: %d %s", rr.Code, rr.Body.String())
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := signupForm()
			tt.mutate(form)
			rr := postForm(h, "/signup", form)
			if rr.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			body := decodeError(t, rr)
			if body["code"] != tt.wantCode {
				t.Errorf("Expected code %q, got %v", tt.wantCode, body["code"])
			}
			if body["field"] != tt.wantField {
				t.Errorf("Expected field %q, got %v", tt.wantField, body["field"])
			}
		})
	}
}

func TestSignupFlowJSONBody(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	body := `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","password":"engine1","confirmPassword":"engine1"}`
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	web.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Errorf("Expected status %d, got %d: %s", http.StatusSeeOther, rr.Code, rr.Body.String())
	}
}

func TestSignupErrorHandlerHook(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	var seen *ga.AuthError
	web.OnSignupError = func(err *ga.AuthError, w http.ResponseWriter, r *http.Request) bool {
		seen = err
		http.Redirect(w, r, "/sign-up?error="+url.QueryEscape(err.Message), http.StatusSeeOther)
		return true
	}

	form := signupForm()
	form.Set("confirmPassword", "nope-nope")
	rr := postForm(web.Handler(), "/signup", form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("Expected the hook to redirect, got %d", rr.Code)
	}
	if seen == nil || seen.Code != ga.ErrCodePasswordMismatch {
		t.Errorf("Expected the hook to see password_mismatch, got %+v", seen)
	}
}

// TestLoginFlow covers sign-in, session lookup and logout
func TestLoginFlow(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	h := web.Handler()
	postForm(h, "/signup", signupForm())

	rr := postForm(h, "/sign-in", url.Values{"email": {"ada@example.com"}, "password": {"engine1"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusSeeOther, rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Expected redirect to /dashboard, got %q", loc)
	}
	cookie := sessionCookie(rr)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("Expected a session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("Expected the session cookie to be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var s ga.Session
	if err := json.NewDecoder(rr.Body).Decode(&s); err != nil {
		t.Fatalf("Bad session body: %v", err)
	}
	if s.Claims.Email != "ada@example.com" || s.Subject == "" {
		t.Errorf("Unexpected session %+v", s)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logout?to=/goodbye", nil))
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/goodbye" {
		t.Errorf("Expected redirect to /goodbye, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if cleared := sessionCookie(rr); cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("Expected logout to clear the cookie, got %+v", cleared)
	}
}

func TestLoginFlowCallbackURL(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	h := web.Handler()
	postForm(h, "/signup", signupForm())

	form := url.Values{"email": {"ada@example.com"}, "password": {"engine1"}, "callbackURL": {"/predictions/monaco"}}
	if rr := postForm(h, "/sign-in", form); rr.Header().Get("Location") != "/predictions/monaco" {
		t.Errorf("Expected redirect to the callback URL, got %q", rr.Header().Get("Location"))
	}

	form.Set("callbackURL", "https://evil.example.com/")
	if rr := postForm(h, "/sign-in", form); rr.Header().Get("Location") != "/dashboard" {
		t.Errorf("Expected off-site callback to be ignored, got %q", rr.Header().Get("Location"))
	}
}

func TestLoginFlowInvalidCredentials(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	h := web.Handler()
	postForm(h, "/signup", signupForm())

	for _, form := range []url.Values{
		{"email": {"ada@example.com"}, "password": {"wrong-one"}},
		{"email": {"nobody@example.com"}, "password": {"engine1"}},
	} {
		rr := postForm(h, "/sign-in", form)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
			continue
		}
		if body := decodeError(t, rr); body["error"] != "Invalid email or password" {
			t.Errorf("Unexpected error body %v", body)
		}
		if sessionCookie(rr) != nil {
			t.Error("Expected no session cookie on failure")
		}
	}
}

func TestSessionEndpointWithoutSession(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	rr := httptest.NewRecorder()
	web.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
}

func TestEnsureSessionMiddleware(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	account, err := web.Auth.Register(adaLovelace())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var seen *ga.Session
	dashboard := web.Middleware.EnsureSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ga.SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	dashboard.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/sign-in?callbackURL=%2Fdashboard" {
		t.Errorf("Unexpected redirect %q", loc)
	}

	token, err := web.Auth.Login(ga.LocalLogin{Email: "ada@example.com", Password: "engine1"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	dashboard.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 with a bearer token, got %d", rr.Code)
	}
	if seen == nil || seen.Subject != account.ID {
		t.Errorf("Expected the session in the request context, got %+v", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: ga.DefaultSessionCookieName, Value: token + "tampered"})
	rr = httptest.NewRecorder()
	dashboard.ServeHTTP(rr, req)
	if rr.Code != http.StatusFound {
		t.Errorf("Expected a tampered cookie to be redirected, got %d", rr.Code)
	}
}

func TestSignInPage(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	web.AddProvider("github", http.NotFoundHandler())
	h := web.Handler()

	// the guard's redirect lands on a page that exists
	guard := web.Middleware.EnsureSession(http.NotFoundHandler())
	rr := httptest.NewRecorder()
	guard.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	signIn := rr.Header().Get("Location")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, signIn, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for GET %s, got %d", signIn, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected HTML, got %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{`action="/sign-in"`, `action="/signup"`, `name="callbackURL" value="/dashboard"`, `href="/auth/github/`} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected sign-in page to contain %q", want)
		}
	}

	q := url.Values{"message": {"Account created successfully! Please sign in."}, "callbackURL": {"https://evil.example/"}}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sign-in?"+q.Encode(), nil))
	body = rr.Body.String()
	if !strings.Contains(body, "Account created successfully! Please sign in.") {
		t.Error("Expected the signup success message on the page")
	}
	if strings.Contains(body, "evil.example") {
		t.Error("Expected an offsite callback URL to be dropped")
	}

	q = url.Values{"error": {ga.ErrCodeLinkRefused}, "message": {"<script>alert(1)</script>"}}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sign-in?"+q.Encode(), nil))
	if body = rr.Body.String(); strings.Contains(body, "<script>") || !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Expected the error message to be HTML escaped")
	}
}

func TestExtractSessionRefreshesOldTokens(t *testing.T) {
	web, _, clock := setupTestWeb(t)
	web.Middleware.RefreshAfter = time.Hour
	if _, err := web.Auth.Register(adaLovelace()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	token, _ := web.Auth.Login(ga.LocalLogin{Email: "ada@example.com", Password: "engine1"})

	handler := web.Middleware.ExtractSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ga.SessionFromContext(r.Context()); !ok {
			t.Error("Expected a session in the context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ga.DefaultSessionCookieName, Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if sessionCookie(rr) != nil {
		t.Error("Expected a fresh token not to be reissued")
	}

	clock.Advance(2 * time.Hour)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if c := sessionCookie(rr); c == nil || c.Value == token {
		t.Error("Expected an old token to be reissued")
	}
}

func TestFederatedCallbackFlow(t *testing.T) {
	web, repo, _ := setupTestWeb(t)
	identity := githubIdentity()

	// stands in for a provider package: remembers where to return, then
	// completes the login as a callback would
	web.AddProvider("fake", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.Flow.Put(r.Context(), ga.FlowKeyCallbackURL, "/predictions")
		web.CompleteFederatedLogin(identity, w, r)
	}))

	rr := httptest.NewRecorder()
	web.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/fake/callback/", nil))
	if rr.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/predictions" {
		t.Errorf("Expected redirect to the stored callback URL, got %q", loc)
	}
	if sessionCookie(rr) == nil {
		t.Error("Expected a session cookie")
	}
	if _, err := repo.FindByFederatedKey("github", "1815"); err != nil {
		t.Errorf("Expected the federated account to exist, got %v", err)
	}

	// bare prefix redirects to the slash form
	rr = httptest.NewRecorder()
	web.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/fake", nil))
	if rr.Code != http.StatusPermanentRedirect {
		t.Errorf("Expected 308 for the bare prefix, got %d", rr.Code)
	}
}

func TestFederatedCallbackLinkRefused(t *testing.T) {
	web, _, _ := setupTestWeb(t)
	if _, err := web.Auth.Register(adaLovelace()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	identity := githubIdentity()
	identity.EmailVerified = false

	web.AddProvider("fake", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.CompleteFederatedLogin(identity, w, r)
	}))
	rr := httptest.NewRecorder()
	web.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/fake/callback/", nil))
	loc, _ := url.Parse(rr.Header().Get("Location"))
	if loc == nil || loc.Path != "/sign-in" || loc.Query().Get("error") != ga.ErrCodeLinkRefused {
		t.Errorf("Expected redirect to sign-in with link_refused, got %q", rr.Header().Get("Location"))
	}
	if sessionCookie(rr) != nil {
		t.Error("Expected no session cookie")
	}
}
