package gridauth

// Error codes shared by the auth workflows and the HTTP handlers
const (
	ErrCodeMissingField     = "missing_field"
	ErrCodePasswordMismatch = "password_mismatch"
	ErrCodeWeakPassword     = "weak_password"
	ErrCodeDuplicateAccount = "duplicate_account"
	ErrCodeInvalidCreds     = "invalid_credentials"
	ErrCodeHashing          = "hashing_error"
	ErrCodeLinkRefused      = "link_refused"
	ErrCodeInvalidIdentity  = "invalid_identity"
)

// AuthError is a user facing authentication failure.
// Message is safe to show to the user, Field names the offending form field.
type AuthError struct {
	Code    string
	Message string
	Field   string
	Err     error
}

// NewAuthError creates an AuthError without an underlying cause
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any AuthError with the same code, so errors.Is(err, ErrWeakPassword)
// holds regardless of the field or message carried by err.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrMissingField       = NewAuthError(ErrCodeMissingField, "All required fields must be filled", "")
	ErrPasswordMismatch   = NewAuthError(ErrCodePasswordMismatch, "Passwords do not match", "confirmPassword")
	ErrWeakPassword       = NewAuthError(ErrCodeWeakPassword, "Password must be at least 6 characters long", "password")
	ErrDuplicateAccount   = NewAuthError(ErrCodeDuplicateAccount, "User with this email already exists", "email")
	ErrInvalidCredentials = NewAuthError(ErrCodeInvalidCreds, "Invalid email or password", "")
	ErrHashing            = NewAuthError(ErrCodeHashing, "Unable to process credentials", "")
	ErrLinkRefused        = NewAuthError(ErrCodeLinkRefused, "Sign in with your password to use this provider", "")
	ErrInvalidIdentity    = NewAuthError(ErrCodeInvalidIdentity, "Identity provider returned an incomplete identity", "")
)

// IsUserError returns true for errors the user can correct (shown inline)
func IsUserError(err *AuthError) bool {
	switch err.Code {
	case ErrCodeHashing, ErrCodeInvalidIdentity:
		return false
	}
	return true
}
