package oauth2

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
	ga "github.com/gridpicks/gridauth"
	"golang.org/x/oauth2"
)

// HandleIdentityFunc is called once a provider has vouched for a user.
// WebAuth.CompleteFederatedLogin is the usual implementation.
type HandleIdentityFunc func(identity ga.ExternalIdentity, w http.ResponseWriter, r *http.Request)

// fetchIdentityFunc reads the user's profile with an authorized client
type fetchIdentityFunc func(ctx context.Context, client *http.Client) (ga.ExternalIdentity, error)

// BaseOAuth2 runs the authorization code flow: "/" redirects to the provider,
// "/callback/" checks state, exchanges the code and fetches the identity.
// It must be served inside Flow.LoadAndSave (WebAuth.AddProvider does this).
type BaseOAuth2 struct {
	Provider     string
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// Holds the state and return URL between the redirect and the callback
	Flow *scs.SessionManager

	HandleIdentity HandleIdentityFunc

	// Where users land when the provider or the exchange fails
	AuthFailureUrl string

	// Optional client for the token exchange and profile calls (tests, proxies)
	HTTPClient *http.Client

	OAuthConfig oauth2.Config

	fetchIdentity fetchIdentityFunc
	mux           *http.ServeMux
}

func NewBaseOAuth2(provider, clientId, clientSecret, callbackUrl string, flow *scs.SessionManager, handle HandleIdentityFunc) *BaseOAuth2 {
	out := &BaseOAuth2{
		Provider:       provider,
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		Flow:           flow,
		HandleIdentity: handle,
		AuthFailureUrl: "/sign-in?error=oauth",
		mux:            http.NewServeMux(),
		OAuthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	out.mux.HandleFunc("/callback/", out.handleCallback)
	out.mux.HandleFunc("/", OauthRedirector(&out.OAuthConfig, flow))
	return out
}

func (b *BaseOAuth2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// ExchangeContext makes the oauth2 library use HTTPClient when one is set
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

func (b *BaseOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	expected := b.Flow.PopString(r.Context(), ga.FlowKeyOAuthState)
	if expected == "" {
		http.Error(w, "missing oauth state", http.StatusBadRequest)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.FormValue("state")), []byte(expected)) != 1 {
		slog.Warn("oauth state mismatch", "provider", b.Provider)
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	if reason := r.FormValue("error"); reason != "" {
		slog.Info("provider refused authorization", "provider", b.Provider, "reason", reason)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusFound)
		return
	}

	ctx := b.ExchangeContext(r.Context())
	token, err := b.OAuthConfig.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		slog.Info("invalid code exchange", "provider", b.Provider, "err", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusFound)
		return
	}

	identity, err := b.fetchIdentity(ctx, b.OAuthConfig.Client(ctx, token))
	if err != nil {
		slog.Info("error fetching identity", "provider", b.Provider, "err", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusFound)
		return
	}
	identity.Provider = b.Provider
	b.HandleIdentity(identity, w, r)
}
