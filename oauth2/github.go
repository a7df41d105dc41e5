package oauth2

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/alexedwards/scs/v2"
	ga "github.com/gridpicks/gridauth"
	"golang.org/x/oauth2/github"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL and EmailsURL default to GitHub's API.
	// Can be overridden for testing.
	UserInfoURL string
	EmailsURL   string
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func NewGithubOAuth2(clientId, clientSecret, callbackUrl string, flow *scs.SessionManager, handle HandleIdentityFunc) *GithubOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CALLBACK_URL"))
	}

	out := &GithubOAuth2{
		BaseOAuth2:  NewBaseOAuth2("github", clientId, clientSecret, callbackUrl, flow, handle),
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
	}
	out.OAuthConfig.Endpoint = github.Endpoint
	out.OAuthConfig.Scopes = []string{"read:user", "user:email"}
	out.fetchIdentity = out.fetchGithubIdentity
	return out
}

func (g *GithubOAuth2) fetchGithubIdentity(ctx context.Context, client *http.Client) (ga.ExternalIdentity, error) {
	var user githubUser
	if err := getJSON(ctx, client, g.UserInfoURL, &user); err != nil {
		return ga.ExternalIdentity{}, err
	}

	identity := ga.ExternalIdentity{
		Subject:   strconv.FormatInt(user.ID, 10),
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}
	if identity.Name == "" {
		identity.Name = user.Login
	}
	if user.ID == 0 {
		identity.Subject = ""
	}

	// the profile email is whatever the user made public and carries no
	// verification flag; the emails endpoint does
	identity.Email = user.Email
	var emails []githubEmail
	if err := getJSON(ctx, client, g.EmailsURL, &emails); err != nil {
		slog.Info("github emails unavailable, using profile email", "err", err)
		return identity, nil
	}
	if email, ok := pickGithubEmail(emails); ok {
		identity.Email = email.Email
		identity.EmailVerified = email.Verified
	}
	return identity, nil
}

// pickGithubEmail prefers the primary verified address, then any verified one
func pickGithubEmail(emails []githubEmail) (githubEmail, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e, true
		}
	}
	return githubEmail{}, false
}
