package gridauth

import (
	"errors"
	"fmt"
	"log/slog"
)

// Observer receives auth outcomes. The metrics package provides a
// prometheus backed implementation.
type Observer interface {
	ObserveLogin(provider string, outcome string)
	ObserveRegistration(outcome string)
	ObserveSessionCheck(valid bool)
}

// GridAuth is the entry point for registration, login and session checks.
// It holds no per-user state and is safe for concurrent use once configured.
type GridAuth struct {
	Accounts AccountRepository
	Sessions *SessionManager

	// Defaults to a PooledHasher around a BcryptHasher at DefaultBcryptCost
	Hasher PasswordHasher

	// Defaults to DefaultSignupPolicy()
	SignupPolicy *SignupPolicy

	AllowUnverifiedLinking bool

	Observer Observer

	local     *LocalProvider
	federated *FederatedProvider
	register  RegisterFunc
}

// New creates a GridAuth with default hashing and signup rules
func New(accounts AccountRepository, sessions *SessionManager) *GridAuth {
	return (&GridAuth{Accounts: accounts, Sessions: sessions}).EnsureDefaults()
}

// EnsureDefaults fills unset fields and wires the providers. Call again after
// changing exported fields.
func (g *GridAuth) EnsureDefaults() *GridAuth {
	if g.Hasher == nil {
		g.Hasher = NewPooledHasher(NewBcryptHasher(DefaultBcryptCost), 0)
	}
	if g.SignupPolicy == nil {
		policy := DefaultSignupPolicy()
		g.SignupPolicy = &policy
	}
	g.local = &LocalProvider{Accounts: g.Accounts, Hasher: g.Hasher}
	g.federated = &FederatedProvider{Accounts: g.Accounts, AllowUnverifiedLinking: g.AllowUnverifiedLinking}
	g.register = NewRegisterFunc(g.Accounts, g.Hasher, *g.SignupPolicy)
	return g
}

// Register creates a local account. The returned account has no password hash.
func (g *GridAuth) Register(in *RegistrationInput) (*Account, error) {
	account, err := g.register(in)
	if g.Observer != nil {
		g.Observer.ObserveRegistration(outcomeOf(err))
	}
	return account, err
}

// Login authenticates req and issues a session token for the resolved account
func (g *GridAuth) Login(req LoginRequest) (string, error) {
	account, err := g.authenticate(req)
	if err == nil {
		var token string
		if token, err = g.Sessions.Issue(account); err == nil {
			g.observeLogin(req, nil)
			slog.Info("login", "account", account.ID, "provider", providerLabel(req))
			return token, nil
		}
		err = fmt.Errorf("issuing session: %w", err)
	}
	g.observeLogin(req, err)
	return "", err
}

func (g *GridAuth) authenticate(req LoginRequest) (*Account, error) {
	switch r := req.(type) {
	case LocalLogin:
		return g.local.Authenticate(r.Email, r.Password)
	case *LocalLogin:
		return g.local.Authenticate(r.Email, r.Password)
	case FederatedLogin:
		return g.federated.Resolve(r.Identity)
	case *FederatedLogin:
		return g.federated.Resolve(r.Identity)
	}
	return nil, fmt.Errorf("unsupported login request %T", req)
}

// Logout has no server side effect. Tokens are stateless and stay valid until
// expiry; the caller discards its copy (see WebAuth.HandleLogout).
func (g *GridAuth) Logout() {}

// CurrentSession validates token and returns its session
func (g *GridAuth) CurrentSession(token string) (*Session, bool) {
	s, ok := g.Sessions.Validate(token)
	if g.Observer != nil {
		g.Observer.ObserveSessionCheck(ok)
	}
	return s, ok
}

func (g *GridAuth) observeLogin(req LoginRequest, err error) {
	if g.Observer != nil {
		g.Observer.ObserveLogin(providerLabel(req), outcomeOf(err))
	}
}

// providerLabel is "local" or the federated provider name
func providerLabel(req LoginRequest) string {
	switch r := req.(type) {
	case FederatedLogin:
		return r.Identity.Key().Provider
	case *FederatedLogin:
		return r.Identity.Key().Provider
	}
	return ProviderLocal.String()
}

// outcomeOf is "success", an AuthError code, or "error"
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return "error"
}
