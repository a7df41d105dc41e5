package gridauth

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config collects the deployment settings. Unset fields are read from the
// environment by EnsureDefaults; explicit values (e.g. CLI flags) win.
type Config struct {
	// Optional name used as the token issuer and cookie prefix
	AppName string

	// HMAC key for session tokens (GRIDAUTH_SESSION_SECRET)
	SessionSecret string

	// How long a session token is valid (GRIDAUTH_SESSION_TTL, Go duration). Defaults to 1 day
	SessionTTL time.Duration

	// bcrypt work factor (GRIDAUTH_BCRYPT_COST). Defaults to 12
	BcryptCost int

	// Concurrent hash/verify calls (GRIDAUTH_HASH_WORKERS). Defaults to GOMAXPROCS
	HashWorkers int

	// Link federated identities with unverified emails to existing accounts
	AllowUnverifiedLinking bool

	// Public base URL of the app, used to build OAuth callback URLs (OAUTH2_BASE_URL)
	BaseURL string

	// All the domains where the session cookie is set on login and cleared on logout
	CookieDomains []string
	SecureCookies bool

	GithubClientID     string
	GithubClientSecret string
	GithubCallbackURL  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
}

func (c *Config) EnsureDefaults() *Config {
	if c.AppName == "" {
		c.AppName = "gridauth"
	}
	if c.SessionSecret == "" {
		c.SessionSecret = strings.TrimSpace(os.Getenv("GRIDAUTH_SESSION_SECRET"))
	}
	if c.SessionTTL <= 0 {
		if v := os.Getenv("GRIDAUTH_SESSION_TTL"); v != "" {
			if ttl, err := time.ParseDuration(v); err == nil {
				c.SessionTTL = ttl
			} else {
				slog.Warn("ignoring invalid GRIDAUTH_SESSION_TTL", "value", v, "err", err)
			}
		}
		if c.SessionTTL <= 0 {
			c.SessionTTL = DefaultSessionTTL
		}
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = envInt("GRIDAUTH_BCRYPT_COST", DefaultBcryptCost)
	}
	if c.HashWorkers == 0 {
		c.HashWorkers = envInt("GRIDAUTH_HASH_WORKERS", 0)
	}
	if c.BaseURL == "" {
		c.BaseURL = strings.TrimSuffix(os.Getenv("OAUTH2_BASE_URL"), "/")
	}

	envDefault(&c.GithubClientID, "OAUTH2_GITHUB_CLIENT_ID")
	envDefault(&c.GithubClientSecret, "OAUTH2_GITHUB_CLIENT_SECRET")
	envDefault(&c.GithubCallbackURL, "OAUTH2_GITHUB_CALLBACK_URL")
	if c.GithubCallbackURL == "" {
		c.GithubCallbackURL = c.BaseURL + "/auth/github/callback/"
	}
	envDefault(&c.GoogleClientID, "OAUTH2_GOOGLE_CLIENT_ID")
	envDefault(&c.GoogleClientSecret, "OAUTH2_GOOGLE_CLIENT_SECRET")
	envDefault(&c.GoogleCallbackURL, "OAUTH2_GOOGLE_CALLBACK_URL")
	if c.GoogleCallbackURL == "" {
		c.GoogleCallbackURL = c.BaseURL + "/auth/google/callback/"
	}
	return c
}

// NewSessionManager builds the session manager. Without a configured secret a
// random one is generated and sessions do not survive a restart.
func (c *Config) NewSessionManager(opts ...SessionOption) (*SessionManager, error) {
	secret := []byte(c.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		slog.Warn("GRIDAUTH_SESSION_SECRET not set, using a random secret")
	}
	opts = append([]SessionOption{WithSessionTTL(c.SessionTTL), WithSessionIssuer(c.AppName)}, opts...)
	return NewSessionManager(secret, opts...)
}

// Validate rejects settings that would only fail once requests arrive
func (c *Config) Validate() error {
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %v", c.SessionTTL)
	}
	return nil
}

// NewGridAuth wires a GridAuth for this config on top of accounts
func (c *Config) NewGridAuth(accounts AccountRepository) (*GridAuth, error) {
	c.EnsureDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sessions, err := c.NewSessionManager()
	if err != nil {
		return nil, err
	}
	return (&GridAuth{
		Accounts:               accounts,
		Sessions:               sessions,
		Hasher:                 NewPooledHasher(NewBcryptHasher(c.BcryptCost), c.HashWorkers),
		AllowUnverifiedLinking: c.AllowUnverifiedLinking,
	}).EnsureDefaults(), nil
}

func (c *Config) GithubEnabled() bool { return c.GithubClientID != "" && c.GithubClientSecret != "" }
func (c *Config) GoogleEnabled() bool { return c.GoogleClientID != "" && c.GoogleClientSecret != "" }

func envDefault(field *string, name string) {
	if *field == "" {
		*field = strings.TrimSpace(os.Getenv(name))
	}
}

func envInt(name string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer env var", "name", name, "value", v)
		return fallback
	}
	return n
}
