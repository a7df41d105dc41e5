package gridauth

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RegistrationInput is the sign-up form as submitted. It is never persisted.
type RegistrationInput struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FavoriteTeam    string `json:"favTeam"`
	FavoriteDriver  string `json:"favDriver"`
}

// LoginInput is the sign-in form as submitted
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupPolicy holds the tunable registration rules
type SignupPolicy struct {
	MinPasswordLength int

	// bcrypt only reads the first 72 bytes, longer passwords are refused up front
	MaxPasswordBytes int
}

// DefaultSignupPolicy returns the rules the sign-up form has always enforced
func DefaultSignupPolicy() SignupPolicy {
	return SignupPolicy{MinPasswordLength: 6, MaxPasswordBytes: 72}
}

func (p SignupPolicy) minLength() int {
	if p.MinPasswordLength <= 0 {
		return 6
	}
	return p.MinPasswordLength
}

// ValidateRegistration checks a sign-up form and returns the first failing rule.
// Order: required fields, password confirmation, password strength.
// Email format is not checked, any non-blank value is accepted.
func (p SignupPolicy) ValidateRegistration(in *RegistrationInput) error {
	required := []struct {
		field string
		value string
	}{
		{"firstName", strings.TrimSpace(in.FirstName)},
		{"lastName", strings.TrimSpace(in.LastName)},
		{"email", strings.TrimSpace(in.Email)},
		{"password", in.Password},
		{"confirmPassword", in.ConfirmPassword},
	}
	for _, r := range required {
		if r.value == "" {
			return NewAuthError(ErrCodeMissingField, ErrMissingField.Message, r.field)
		}
	}

	if in.Password != in.ConfirmPassword {
		return ErrPasswordMismatch
	}

	if minLen := p.minLength(); utf8.RuneCountInString(in.Password) < minLen {
		return NewAuthError(ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at least %d characters long", minLen), "password")
	}
	if p.MaxPasswordBytes > 0 && len(in.Password) > p.MaxPasswordBytes {
		return NewAuthError(ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at most %d bytes long", p.MaxPasswordBytes), "password")
	}
	return nil
}

// ValidateRegistration applies DefaultSignupPolicy
func ValidateRegistration(in *RegistrationInput) error {
	return DefaultSignupPolicy().ValidateRegistration(in)
}

// ValidateLogin only checks presence. Anything else would leak hints before
// the credential check runs.
func ValidateLogin(in *LoginInput) error {
	if strings.TrimSpace(in.Email) == "" {
		return NewAuthError(ErrCodeMissingField, ErrMissingField.Message, "email")
	}
	if in.Password == "" {
		return NewAuthError(ErrCodeMissingField, ErrMissingField.Message, "password")
	}
	return nil
}
