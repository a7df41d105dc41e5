package gridauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// HandleLogin signs a user in with email and password.
// On success the session cookie is set and the user is sent to the callback
// URL (if local) or AfterLoginURL.
func (a *WebAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	callbackURL, err := decodeForm(r, &in, func(get func(string) string) {
		in.Email = get("email")
		in.Password = get("password")
	})
	if err != nil {
		a.handleLoginError(NewAuthError(ErrCodeMissingField, ErrMissingField.Message, ""), w, r)
		return
	}

	token, err := a.Auth.Login(LocalLogin{Email: in.Email, Password: in.Password})
	if err != nil {
		authErr := asAuthError(err)
		if authErr.Err != nil {
			slog.Error("login failed", "email", maskEmail(NormalizeEmail(in.Email)), "err", err)
		}
		a.handleLoginError(authErr, w, r)
		return
	}

	a.setSessionCookie(w, token)
	if !IsLocalRedirect(callbackURL) {
		callbackURL = a.AfterLoginURL
	}
	http.Redirect(w, r, callbackURL, http.StatusSeeOther)
}

func (a *WebAuth) handleLoginError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnLoginError != nil && a.OnLoginError(err, w, r) {
		return
	}
	writeAuthError(w, err)
}

// decodeForm reads either a url encoded / multipart form or a JSON body.
// Forms are read field by field through fill; JSON is decoded into dst.
// The callbackURL field is returned separately in both cases.
func decodeForm(r *http.Request, dst any, fill func(get func(string) string)) (callbackURL string, err error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var raw json.RawMessage
		if err = json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return "", fmt.Errorf("invalid post body: %w", err)
		}
		if err = json.Unmarshal(raw, dst); err != nil {
			return "", fmt.Errorf("invalid post body: %w", err)
		}
		var extra struct {
			CallbackURL string `json:"callbackURL"`
		}
		_ = json.Unmarshal(raw, &extra)
		return extra.CallbackURL, nil
	}

	if strings.HasPrefix(contentType, "multipart/form-data") {
		err = r.ParseMultipartForm(1 << 20)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return "", fmt.Errorf("error parsing form: %w", err)
	}
	fill(r.FormValue)
	return r.FormValue("callbackURL"), nil
}
