package oauth2

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/alexedwards/scs/v2"
	ga "github.com/gridpicks/gridauth"
	"golang.org/x/oauth2/google"
)

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is Google's OpenID Connect userinfo endpoint.
	// Can be overridden for testing.
	UserInfoURL string
}

type googleUser struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

func NewGoogleOAuth2(clientId, clientSecret, callbackUrl string, flow *scs.SessionManager, handle HandleIdentityFunc) *GoogleOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL"))
	}

	out := &GoogleOAuth2{
		BaseOAuth2:  NewBaseOAuth2("google", clientId, clientSecret, callbackUrl, flow, handle),
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
	}
	out.OAuthConfig.Endpoint = google.Endpoint
	out.OAuthConfig.Scopes = []string{"openid", "email", "profile"}
	out.fetchIdentity = out.fetchGoogleIdentity
	return out
}

func (g *GoogleOAuth2) fetchGoogleIdentity(ctx context.Context, client *http.Client) (ga.ExternalIdentity, error) {
	var user googleUser
	if err := getJSON(ctx, client, g.UserInfoURL, &user); err != nil {
		return ga.ExternalIdentity{}, err
	}
	return ga.ExternalIdentity{
		Subject:       user.Sub,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Name:          user.Name,
		FirstName:     user.GivenName,
		LastName:      user.FamilyName,
		AvatarURL:     user.Picture,
	}, nil
}
