package gridauth

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FederatedKey identifies an account at an external identity provider
type FederatedKey struct {
	Provider string `json:"provider"` // "github", "google", "saml"
	Subject  string `json:"subject"`  // provider scoped user id
}

func (k FederatedKey) String() string { return k.Provider + ":" + k.Subject }
func (k FederatedKey) IsZero() bool   { return k.Provider == "" || k.Subject == "" }

// Account is a registered (local) or federated user of the prediction community
type Account struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	PasswordHash   string        `json:"password_hash,omitempty"`
	FederatedKey   *FederatedKey `json:"federated_key,omitempty"`
	FirstName      string        `json:"first_name,omitempty"`
	LastName       string        `json:"last_name,omitempty"`
	DisplayName    string        `json:"display_name,omitempty"`
	AvatarURL      string        `json:"avatar_url,omitempty"`
	FavoriteTeam   string        `json:"favorite_team,omitempty"`
	FavoriteDriver string        `json:"favorite_driver,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// HasPassword returns true if the account can sign in with a local password
func (a *Account) HasPassword() bool { return a.PasswordHash != "" }

// IsFederated returns true if an external identity is attached to the account
func (a *Account) IsFederated() bool { return a.FederatedKey != nil && !a.FederatedKey.IsZero() }

// Name returns the best display name available for the account
func (a *Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if full := strings.TrimSpace(a.FirstName + " " + a.LastName); full != "" {
		return full
	}
	return a.Email
}

// Public returns a copy of the account without credential material.
func (a *Account) Public() *Account {
	out := *a
	out.PasswordHash = ""
	if a.FederatedKey != nil {
		key := *a.FederatedKey
		out.FederatedKey = &key
	}
	return &out
}

// CheckCredentials enforces that an account carries at least one way to sign in.
// Stores call this before persisting a new account.
func (a *Account) CheckCredentials() error {
	if a.Email == "" {
		return errors.New("account email is required")
	}
	if !a.HasPassword() && !a.IsFederated() {
		return errors.New("account needs a password hash or a federated key")
	}
	return nil
}

var (
	// ErrAccountNotFound is returned by repositories when no record matches a lookup
	ErrAccountNotFound = errors.New("account not found")

	// ErrConstraintViolation is returned by repositories when a write would break
	// email or federated key uniqueness
	ErrConstraintViolation = errors.New("account constraint violation")
)

// AccountRepository is the persistent store of account records.
//
// Implementations must enforce email and federated key uniqueness themselves
// (unique index, exclusive file create, transaction) so that concurrent
// registrations for one email produce exactly one record.
type AccountRepository interface {
	// FindByEmail looks up an account by its normalized email
	FindByEmail(email string) (*Account, error)

	// FindByFederatedKey looks up an account by provider + provider subject
	FindByFederatedKey(provider, subject string) (*Account, error)

	// Create persists a new account, assigning its ID when empty.
	// Returns ErrConstraintViolation if the email or federated key is taken.
	Create(account *Account) (*Account, error)

	// AttachFederatedKey links an external identity to an existing account
	AttachFederatedKey(accountID string, key FederatedKey) (*Account, error)
}

// AccountLister is implemented by repositories that can enumerate accounts (admin tooling)
type AccountLister interface {
	ListAccounts(limit int) ([]*Account, error)
}

// NormalizeEmail lowercases and trims an email so lookups are case insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccountID generates an opaque, immutable account id
func NewAccountID() string {
	return uuid.NewString()
}
