package gridauth

import (
	"html/template"
	"log/slog"
	"net/http"
)

var defaultSignInPage = template.Must(template.New("sign-in").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sign in to GridPicks</title></head>
<body>
{{if .Message}}<p class="message">{{.Message}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<h1>Sign in</h1>
<form method="post" action="/sign-in">
  <input type="hidden" name="callbackURL" value="{{.CallbackURL}}">
  <label>Email <input type="email" name="email" required></label>
  <label>Password <input type="password" name="password" required></label>
  <button type="submit">Sign in</button>
</form>
{{range .Providers}}<p><a href="/auth/{{.}}/?callbackURL={{$.CallbackURL}}">Continue with {{.}}</a></p>
{{end}}
<h2>Create an account</h2>
<form method="post" action="/signup">
  <label>First name <input name="firstName" required></label>
  <label>Last name <input name="lastName" required></label>
  <label>Email <input type="email" name="email" required></label>
  <label>Password <input type="password" name="password" required></label>
  <label>Confirm password <input type="password" name="confirmPassword" required></label>
  <label>Favorite team <input name="favTeam"></label>
  <label>Favorite driver <input name="favDriver"></label>
  <button type="submit">Sign up</button>
</form>
</body>
</html>
`))

// SignInPageData is what the sign-in page template renders
type SignInPageData struct {
	Message     string
	Error       string
	CallbackURL string
	Providers   []string
}

// HandleSignInPage renders the sign-in and sign-up forms, the landing spot for
// EnsureSession redirects and the signup success message.
func (a *WebAuth) HandleSignInPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := SignInPageData{
		Message:   q.Get("message"),
		Providers: a.providers,
	}
	if code := q.Get("error"); code != "" {
		data.Error = q.Get("message")
		if data.Error == "" {
			data.Error = "Sign in failed, please try again"
		}
		data.Message = ""
	}
	if cb := q.Get(a.Middleware.CallbackURLParam); IsLocalRedirect(cb) {
		data.CallbackURL = cb
	}

	page := a.SignInPage
	if page == nil {
		page = defaultSignInPage
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, data); err != nil {
		slog.Warn("error rendering sign-in page", "err", err)
	}
}
