package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	ga "github.com/gridpicks/gridauth"
	"golang.org/x/oauth2"
)

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// OauthRedirector sends the browser to the provider's consent page. The state
// and an optional local callbackURL are kept in the flow session.
func OauthRedirector(oauthConfig *oauth2.Config, flow *scs.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if callbackURL := r.URL.Query().Get("callbackURL"); ga.IsLocalRedirect(callbackURL) {
			flow.Put(r.Context(), ga.FlowKeyCallbackURL, callbackURL)
		}
		state, err := generateState()
		if err != nil {
			slog.Error("error generating oauth state", "err", err)
			http.Error(w, "unable to start login", http.StatusInternalServerError)
			return
		}
		flow.Put(r.Context(), ga.FlowKeyOAuthState, state)
		http.Redirect(w, r, oauthConfig.AuthCodeURL(state), http.StatusFound)
	}
}

// getJSON fetches url with an authorized client and decodes the body into dst
func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed getting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, url, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return nil
}
