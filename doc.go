// Package gridauth provides sign-up, sign-in and sessions for the GridPicks
// race prediction community.
//
// Users either register locally with an email and password or arrive through
// a federated provider (GitHub, Google, SAML). Both paths end in the same
// place: an Account in an AccountRepository and a signed, stateless session
// token carrying the account id.
//
// # Architecture
//
// Account: a registered or federated user. Emails are normalized and unique.
// Local accounts carry a bcrypt hash; federated accounts carry a FederatedKey
// (provider + provider subject).
//
// AccountRepository: storage for accounts. Implementations live in
// stores/fs (JSON files), stores/gorm (SQL) and stores/gae (Cloud Datastore).
//
// LoginRequest: a closed set of login variants, LocalLogin and FederatedLogin.
// GridAuth.Login resolves either one to an account and issues a token.
//
// SessionManager: issues and validates HS256 tokens. Validation never errors;
// a bad, tampered or expired token simply yields no session.
//
// # Basic Usage
//
//	import (
//	    "github.com/gridpicks/gridauth"
//	    "github.com/gridpicks/gridauth/oauth2"
//	    "github.com/gridpicks/gridauth/stores/fs"
//	)
//
//	accounts := fs.NewFSAccountStore("/path/to/storage")
//	cfg := (&gridauth.Config{}).EnsureDefaults()
//	auth, err := cfg.NewGridAuth(accounts)
//
//	web := gridauth.NewWebAuth(auth)
//	web.AddProvider("github", oauth2.NewGithubOAuth2(
//	    cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubCallbackURL,
//	    web.Flow, web.CompleteFederatedLogin))
//
//	mux := http.NewServeMux()
//	mux.Handle("/", web.Handler())
//	mux.Handle("/dashboard", web.Middleware.EnsureSession(dashboardHandler))
//
// Handlers downstream of the middleware read the session with
// SessionFromContext.
//
// # Logout
//
// Sessions are stateless. Logout clears the cookie but a copied token remains
// valid until it expires; keep SessionTTL short if that matters.
package gridauth
