package gridauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is how long an issued session token stays valid
const DefaultSessionTTL = 24 * time.Hour

// DefaultSessionIssuer is written to and required in the iss claim
const DefaultSessionIssuer = "gridauth"

// SessionClaims are the profile fields carried inside the token
type SessionClaims struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Session is the decoded content of a valid session token
type Session struct {
	Subject   string        `json:"subject"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Claims    SessionClaims `json:"claims"`
}

type sessionToken struct {
	SessionClaims
	jwt.RegisteredClaims
}

// SessionManager issues and validates HS256 signed session tokens.
// Nothing is stored server side; a token is valid until it expires.
type SessionManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type SessionOption func(*SessionManager)

func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithSessionIssuer(issuer string) SessionOption {
	return func(m *SessionManager) {
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewSessionManager copies secret so later changes by the caller have no effect
func NewSessionManager(secret []byte, opts ...SessionOption) (*SessionManager, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret must not be empty")
	}
	m := &SessionManager{
		secret: append([]byte(nil), secret...),
		issuer: DefaultSessionIssuer,
		ttl:    DefaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Issue signs a token whose subject is the account id
func (m *SessionManager) Issue(account *Account) (string, error) {
	if account == nil || account.ID == "" {
		return "", errors.New("cannot issue a session without an account id")
	}
	claims := SessionClaims{Name: account.Name(), Email: account.Email, Avatar: account.AvatarURL}
	return m.sign(account.ID, claims)
}

func (m *SessionManager) sign(subject string, claims SessionClaims) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionToken{
		SessionClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	return token.SignedString(m.secret)
}

// Validate returns the session for a well formed, correctly signed, unexpired
// token. Every failure collapses to (nil, false).
func (m *SessionManager) Validate(tokenString string) (*Session, bool) {
	if tokenString == "" {
		return nil, false
	}

	var claims sessionToken
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		slog.Debug("rejected session token", "err", err)
		return nil, false
	}
	if claims.Subject == "" {
		return nil, false
	}

	s := &Session{Subject: claims.Subject, Claims: claims.SessionClaims}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	s.ExpiresAt = claims.ExpiresAt.Time
	return s, true
}

// Refresh reissues a still valid token with a new expiry. The subject and
// profile claims carry over unchanged.
func (m *SessionManager) Refresh(tokenString string) (string, *Session, bool) {
	s, ok := m.Validate(tokenString)
	if !ok {
		return "", nil, false
	}
	fresh, err := m.sign(s.Subject, s.Claims)
	if err != nil {
		slog.Warn("error refreshing session token", "err", err)
		return "", nil, false
	}
	out, ok := m.Validate(fresh)
	return fresh, out, ok
}
