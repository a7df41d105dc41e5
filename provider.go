package gridauth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ProviderKind tells the two login paths apart
type ProviderKind int

const (
	ProviderLocal ProviderKind = iota + 1
	ProviderFederated
)

func (k ProviderKind) String() string {
	switch k {
	case ProviderLocal:
		return "local"
	case ProviderFederated:
		return "federated"
	}
	return "unknown"
}

// LoginRequest is either a LocalLogin or a FederatedLogin. The set is closed:
// the unexported method keeps other packages from adding variants.
type LoginRequest interface {
	Kind() ProviderKind
	loginRequest()
}

// LocalLogin carries an email/password pair
type LocalLogin struct {
	Email    string
	Password string
}

func (LocalLogin) Kind() ProviderKind { return ProviderLocal }
func (LocalLogin) loginRequest()      {}

// FederatedLogin carries an identity already verified by an external provider
type FederatedLogin struct {
	Identity ExternalIdentity
}

func (FederatedLogin) Kind() ProviderKind { return ProviderFederated }
func (FederatedLogin) loginRequest()      {}

// ExternalIdentity is what an OAuth or SAML provider tells us about a user
// after a completed exchange
type ExternalIdentity struct {
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

func (e ExternalIdentity) Key() FederatedKey {
	return FederatedKey{Provider: strings.ToLower(e.Provider), Subject: e.Subject}
}

// LocalProvider authenticates email/password pairs against stored hashes
type LocalProvider struct {
	Accounts AccountRepository
	Hasher   PasswordHasher

	decoyOnce sync.Once
	decoyHash string
}

// rejectAfterVerify burns one Verify against a throwaway hash made by the same
// hasher, so misses cost as much time as a wrong password.
func (p *LocalProvider) rejectAfterVerify(password string) error {
	p.decoyOnce.Do(func() {
		hashed, err := p.Hasher.Hash("gridauth-decoy-" + NewAccountID())
		if err != nil {
			slog.Warn("could not create decoy hash", "err", err)
		}
		p.decoyHash = hashed
	})
	p.Hasher.Verify(password, p.decoyHash)
	return ErrInvalidCredentials
}

// Authenticate returns ErrInvalidCredentials for an unknown email, an account
// without a password and a wrong password alike. All three run one Verify.
func (p *LocalProvider) Authenticate(email, password string) (*Account, error) {
	if err := ValidateLogin(&LoginInput{Email: email, Password: password}); err != nil {
		return nil, err
	}

	account, err := p.Accounts.FindByEmail(NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, p.rejectAfterVerify(password)
		}
		slog.Error("account lookup failed", "email", maskEmail(email), "err", err)
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if !account.HasPassword() {
		return nil, p.rejectAfterVerify(password)
	}
	if !p.Hasher.Verify(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// FederatedProvider maps external identities onto accounts, creating them on first sign-in
type FederatedProvider struct {
	Accounts AccountRepository

	// AllowUnverifiedLinking lets an identity whose email the provider did not
	// verify take over an existing account with that email. Off by default.
	AllowUnverifiedLinking bool
}

// Resolve finds or creates the account for id: by federated key, then by
// email (linking), then by creating a new password-less account.
func (p *FederatedProvider) Resolve(id ExternalIdentity) (*Account, error) {
	key := id.Key()
	if key.IsZero() {
		return nil, ErrInvalidIdentity
	}

	account, err := p.Accounts.FindByFederatedKey(key.Provider, key.Subject)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("looking up federated key: %w", err)
	}

	email := NormalizeEmail(id.Email)
	hasEmail := email != ""
	if hasEmail {
		account, err = p.Accounts.FindByEmail(email)
		if err == nil {
			return p.link(account, id)
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("looking up account: %w", err)
		}
	} else {
		email = placeholderEmail(key)
	}

	account, err = p.create(id, email)
	if !errors.Is(err, ErrConstraintViolation) {
		return account, err
	}

	// a concurrent first sign-in for the same identity won the create
	if account, err = p.Accounts.FindByFederatedKey(key.Provider, key.Subject); err == nil {
		return account, nil
	}
	if hasEmail {
		if account, err = p.Accounts.FindByEmail(email); err == nil {
			return p.link(account, id)
		}
		return nil, fmt.Errorf("resolving federated account after conflict: %w", err)
	}

	// the placeholder address belongs to an unrelated account
	account, err = p.create(id, uniquePlaceholderEmail(key))
	if errors.Is(err, ErrConstraintViolation) {
		if account, err = p.Accounts.FindByFederatedKey(key.Provider, key.Subject); err != nil {
			return nil, fmt.Errorf("resolving federated account after conflict: %w", err)
		}
	}
	return account, err
}

// create returns ErrConstraintViolation unwrapped so callers can re-resolve
func (p *FederatedProvider) create(id ExternalIdentity, email string) (*Account, error) {
	account, err := p.Accounts.Create(newFederatedAccount(id, email))
	if err != nil {
		if errors.Is(err, ErrConstraintViolation) {
			return nil, ErrConstraintViolation
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}
	slog.Info("created federated account", "account", account.ID, "provider", account.FederatedKey.Provider)
	return account, nil
}

func (p *FederatedProvider) link(account *Account, id ExternalIdentity) (*Account, error) {
	key := id.Key()
	if !id.EmailVerified && !p.AllowUnverifiedLinking {
		slog.Warn("refusing to link unverified federated email",
			"account", account.ID, "provider", key.Provider, "email", maskEmail(account.Email))
		return nil, ErrLinkRefused
	}

	// already bound to another external identity; keep that binding
	if account.FederatedKey != nil {
		return account, nil
	}

	linked, err := p.Accounts.AttachFederatedKey(account.ID, key)
	if err != nil {
		return nil, fmt.Errorf("linking federated key: %w", err)
	}
	slog.Info("linked federated identity", "account", linked.ID, "provider", key.Provider)
	return linked, nil
}

func newFederatedAccount(id ExternalIdentity, email string) *Account {
	key := id.Key()
	firstName, lastName := id.FirstName, id.LastName
	if firstName == "" && lastName == "" {
		firstName, lastName = splitName(id.Name)
	}
	displayName := strings.TrimSpace(id.Name)
	if displayName == "" {
		displayName = strings.TrimSpace(firstName + " " + lastName)
	}
	return &Account{
		Email:        email,
		FederatedKey: &key,
		FirstName:    firstName,
		LastName:     lastName,
		DisplayName:  displayName,
		AvatarURL:    id.AvatarURL,
	}
}
