package saml

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	ga "github.com/gridpicks/gridauth"
)

// HandleIdentityFunc is called with the identity asserted by the IdP
type HandleIdentityFunc func(identity ga.ExternalIdentity, w http.ResponseWriter, r *http.Request)

// Options configures a SAMLProvider from files and the IdP's metadata URL.
// Empty fields fall back to SAML_* environment variables.
type Options struct {
	Provider    string
	RootURL     string // e.g. https://gridpicks.example.com/auth/saml/
	CertFile    string
	KeyFile     string
	MetadataURL string
	Attributes  AttributeNames

	// The IdP is a managed directory whose emails can be treated as verified
	TrustEmail bool
}

func (o *Options) ensureDefaults() {
	if o.Provider == "" {
		o.Provider = "saml"
	}
	envDefault := func(field *string, name string) {
		if *field == "" {
			*field = strings.TrimSpace(os.Getenv(name))
		}
	}
	envDefault(&o.RootURL, "SAML_ROOT_URL")
	envDefault(&o.CertFile, "SAML_CERT_FILE")
	envDefault(&o.KeyFile, "SAML_KEY_FILE")
	envDefault(&o.MetadataURL, "SAML_METADATA_URL")
	if o.CertFile == "" {
		o.CertFile = "saml_service.cert"
	}
	if o.KeyFile == "" {
		o.KeyFile = "saml_service.key"
	}
}

// Enabled reports whether an IdP metadata URL is configured, directly or via SAML_METADATA_URL
func (o Options) Enabled() bool {
	o.ensureDefaults()
	return o.MetadataURL != ""
}

// SAMLProvider is an SP-initiated SAML login mounted like the OAuth providers:
// "/login" redirects to the IdP, "/acs" consumes the response and
// "/metadata" serves the SP metadata.
type SAMLProvider struct {
	Provider   string
	SP         *saml.ServiceProvider
	Attributes AttributeNames
	TrustEmail bool

	// Remembers outstanding AuthnRequests across the IdP round trip. The IdP
	// answers with a cross-site POST, so the tracker's cookie is SameSite=None.
	Tracker samlsp.RequestTracker

	Flow           *scs.SessionManager
	HandleIdentity HandleIdentityFunc
	AuthFailureUrl string
	mux            *http.ServeMux
}

// New loads the SP key pair, fetches IdP metadata and builds the provider
func New(ctx context.Context, opts Options, flow *scs.SessionManager, handle HandleIdentityFunc) (*SAMLProvider, error) {
	opts.ensureDefaults()

	keyPair, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading saml key pair: %w", err)
	}
	keyPair.Leaf, err = x509.ParseCertificate(keyPair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsing saml certificate: %w", err)
	}
	key, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("saml key must be an RSA private key")
	}

	metadataURL, err := url.Parse(opts.MetadataURL)
	if err != nil {
		return nil, fmt.Errorf("parsing saml metadata url: %w", err)
	}
	idpMetadata, err := samlsp.FetchMetadata(ctx, http.DefaultClient, *metadataURL)
	if err != nil {
		return nil, fmt.Errorf("fetching saml metadata: %w", err)
	}

	rootURL, err := url.Parse(opts.RootURL)
	if err != nil {
		return nil, fmt.Errorf("parsing saml root url: %w", err)
	}
	sp := samlsp.DefaultServiceProvider(samlsp.Options{
		URL:         *rootURL,
		Key:         key,
		Certificate: keyPair.Leaf,
		IDPMetadata: idpMetadata,
		SignRequest: true, // some IdP require signed requests
	})
	// samlsp puts the endpoints under /saml/; ours sit directly under the mount point
	sp.AcsURL = *rootURL.ResolveReference(&url.URL{Path: "acs"})
	sp.MetadataURL = *rootURL.ResolveReference(&url.URL{Path: "metadata"})

	spPtr := &sp
	tracker := samlsp.DefaultRequestTracker(samlsp.Options{
		URL:            *rootURL,
		Key:            key,
		Certificate:    keyPair.Leaf,
		CookieSameSite: http.SameSiteNoneMode,
	}, spPtr)

	out := NewSAMLProvider(opts.Provider, spPtr, tracker, flow, handle)
	out.Attributes = opts.Attributes
	out.TrustEmail = opts.TrustEmail
	return out, nil
}

func NewSAMLProvider(provider string, sp *saml.ServiceProvider, tracker samlsp.RequestTracker, flow *scs.SessionManager, handle HandleIdentityFunc) *SAMLProvider {
	out := &SAMLProvider{
		Provider:       provider,
		SP:             sp,
		Tracker:        tracker,
		Flow:           flow,
		HandleIdentity: handle,
		AuthFailureUrl: "/sign-in?error=saml",
		mux:            http.NewServeMux(),
	}
	out.mux.HandleFunc("/{$}", out.handleLogin)
	out.mux.HandleFunc("/login", out.handleLogin)
	out.mux.HandleFunc("/acs", out.handleACS)
	out.mux.HandleFunc("/metadata", out.handleMetadata)
	return out
}

func (p *SAMLProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

func (p *SAMLProvider) handleLogin(w http.ResponseWriter, r *http.Request) {
	idpURL := p.SP.GetSSOBindingLocation(saml.HTTPRedirectBinding)
	authReq, err := p.SP.MakeAuthenticationRequest(idpURL, saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		slog.Error("error creating saml authn request", "err", err)
		http.Error(w, "unable to start login", http.StatusInternalServerError)
		return
	}

	// the tracked URI carries the local callback URL back through the IdP
	returnTo := &url.URL{}
	if callbackURL := r.URL.Query().Get("callbackURL"); ga.IsLocalRedirect(callbackURL) {
		if u, err := url.Parse(callbackURL); err == nil {
			returnTo = u
		}
	}
	relayState, err := p.Tracker.TrackRequest(w, &http.Request{URL: returnTo}, authReq.ID)
	if err != nil {
		slog.Error("error tracking saml request", "err", err)
		http.Error(w, "unable to start login", http.StatusInternalServerError)
		return
	}

	redirectURL, err := authReq.Redirect(relayState, p.SP)
	if err != nil {
		slog.Error("error creating saml redirect", "err", err)
		http.Error(w, "unable to start login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// trackedRequest returns the request the IdP is answering, named by the
// RelayState form value, or nil when there is none
func (p *SAMLProvider) trackedRequest(r *http.Request) *samlsp.TrackedRequest {
	relayState := r.Form.Get("RelayState")
	if relayState == "" {
		return nil
	}
	tracked, err := p.Tracker.GetTrackedRequest(r, relayState)
	if err != nil {
		slog.Info("unknown saml relay state", "provider", p.Provider, "err", err)
		return nil
	}
	return tracked
}

func (p *SAMLProvider) handleACS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid saml response", http.StatusBadRequest)
		return
	}

	var possibleRequestIDs []string
	tracked := p.trackedRequest(r)
	if tracked != nil {
		possibleRequestIDs = append(possibleRequestIDs, tracked.SAMLRequestID)
	}
	if p.SP.AllowIDPInitiated {
		possibleRequestIDs = append(possibleRequestIDs, "")
	}

	assertion, err := p.SP.ParseResponse(r, possibleRequestIDs)
	if err != nil {
		var invalid *saml.InvalidResponseError
		if errors.As(err, &invalid) {
			err = invalid.PrivateErr
		}
		slog.Info("rejected saml response", "provider", p.Provider, "err", err)
		http.Redirect(w, r, p.AuthFailureUrl, http.StatusFound)
		return
	}

	identity, err := IdentityFromAssertion(p.Provider, assertion, p.Attributes, p.TrustEmail)
	if err != nil {
		slog.Info("unusable saml assertion", "provider", p.Provider, "err", err)
		http.Redirect(w, r, p.AuthFailureUrl, http.StatusFound)
		return
	}

	if tracked != nil {
		if err := p.Tracker.StopTrackingRequest(w, r, tracked.Index); err != nil {
			slog.Warn("error clearing saml request cookie", "err", err)
		}
		if ga.IsLocalRedirect(tracked.URI) {
			p.Flow.Put(r.Context(), ga.FlowKeyCallbackURL, tracked.URI)
		}
	}
	p.HandleIdentity(identity, w, r)
}

func (p *SAMLProvider) handleMetadata(w http.ResponseWriter, r *http.Request) {
	buf, err := xml.MarshalIndent(p.SP.Metadata(), "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.Write(buf)
}
