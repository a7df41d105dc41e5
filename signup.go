package gridauth

import (
	"log/slog"
	"net/http"
	"net/url"
)

// SignupSuccessMessage is shown on the sign-in page after registering
const SignupSuccessMessage = "Account created successfully! Please sign in."

// HandleSignup processes the registration form. Success redirects to the
// sign-in page with SignupSuccessMessage; the user is not logged in.
func (a *WebAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in RegistrationInput
	_, err := decodeForm(r, &in, func(get func(string) string) {
		in.FirstName = get("firstName")
		in.LastName = get("lastName")
		in.Email = get("email")
		in.Password = get("password")
		in.ConfirmPassword = get("confirmPassword")
		in.FavoriteTeam = get("favTeam")
		in.FavoriteDriver = get("favDriver")
	})
	if err != nil {
		a.handleSignupError(NewAuthError(ErrCodeMissingField, ErrMissingField.Message, ""), w, r)
		return
	}

	account, err := a.Auth.Register(&in)
	if err != nil {
		authErr := asAuthError(err)
		if authErr.Err != nil {
			slog.Error("signup failed", "email", maskEmail(NormalizeEmail(in.Email)), "err", err)
		}
		a.handleSignupError(authErr, w, r)
		return
	}

	slog.Info("signup complete", "account", account.ID)
	q := url.Values{"message": {SignupSuccessMessage}}
	http.Redirect(w, r, a.SignInURL+"?"+q.Encode(), http.StatusSeeOther)
}

// handleSignupError handles signup errors using the configured handler or default JSON
func (a *WebAuth) handleSignupError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnSignupError != nil && a.OnSignupError(err, w, r) {
		return
	}
	writeAuthError(w, err)
}
