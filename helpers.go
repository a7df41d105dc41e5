package gridauth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RegisterFunc creates a local account from a sign-up form
type RegisterFunc func(in *RegistrationInput) (*Account, error)

// NewRegisterFunc creates a RegisterFunc backed by a repository and hasher.
// Every failure path returns before the repository is written to.
func NewRegisterFunc(repo AccountRepository, hasher PasswordHasher, policy SignupPolicy) RegisterFunc {
	return func(in *RegistrationInput) (*Account, error) {
		if err := policy.ValidateRegistration(in); err != nil {
			return nil, err
		}

		email := NormalizeEmail(in.Email)
		existing, err := repo.FindByEmail(email)
		if err == nil && existing != nil {
			return nil, ErrDuplicateAccount
		}
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("looking up account: %w", err)
		}

		passwordHash, err := hasher.Hash(in.Password)
		if err != nil {
			slog.Error("password hashing failed", "email", maskEmail(email), "err", err)
			return nil, err
		}

		firstName := strings.TrimSpace(in.FirstName)
		lastName := strings.TrimSpace(in.LastName)
		account, err := repo.Create(&Account{
			Email:          email,
			PasswordHash:   passwordHash,
			FirstName:      firstName,
			LastName:       lastName,
			DisplayName:    firstName + " " + lastName,
			FavoriteTeam:   strings.TrimSpace(in.FavoriteTeam),
			FavoriteDriver: strings.TrimSpace(in.FavoriteDriver),
		})
		if err != nil {
			// lost a race with a concurrent registration for the same email
			if errors.Is(err, ErrConstraintViolation) {
				return nil, ErrDuplicateAccount
			}
			return nil, fmt.Errorf("creating account: %w", err)
		}

		slog.Info("registered local account", "account", account.ID, "email", maskEmail(email))
		return account.Public(), nil
	}
}

// maskEmail keeps the first character and the domain: "ada@example.com" -> "a***@example.com"
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// placeholderEmail stands in for providers that share no email address
func placeholderEmail(key FederatedKey) string {
	return NormalizeEmail(key.Subject + "@" + key.Provider + ".federated.invalid")
}

// uniquePlaceholderEmail is used when the plain placeholder is already taken
func uniquePlaceholderEmail(key FederatedKey) string {
	return NormalizeEmail(key.Subject + "+" + NewAccountID() + "@" + key.Provider + ".federated.invalid")
}

// splitName splits "Ada King Lovelace" into "Ada" and "King Lovelace"
func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i], strings.TrimSpace(name[i+1:])
	}
	return name, ""
}
