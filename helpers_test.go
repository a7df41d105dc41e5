package gridauth_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ga "github.com/gridpicks/gridauth"
	"github.com/gridpicks/gridauth/stores/fs"
	"golang.org/x/crypto/bcrypt"
)

// countingRepo records how many writes reach the underlying store
type countingRepo struct {
	ga.AccountRepository
	creates atomic.Int32
	links   atomic.Int32
}

func (c *countingRepo) Create(account *ga.Account) (*ga.Account, error) {
	c.creates.Add(1)
	return c.AccountRepository.Create(account)
}

func (c *countingRepo) AttachFederatedKey(id string, key ga.FederatedKey) (*ga.Account, error) {
	c.links.Add(1)
	return c.AccountRepository.AttachFederatedKey(id, key)
}

func (c *countingRepo) writes() int32 { return c.creates.Load() + c.links.Load() }

// testClock is a settable clock for session expiry tests
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testSecret = "grid-test-secret-0123456789abcdef"

// setupTestAuth creates a GridAuth over a temp dir fs store with a cheap bcrypt cost
func setupTestAuth(t *testing.T) (*ga.GridAuth, *countingRepo, *testClock) {
	t.Helper()
	repo := &countingRepo{AccountRepository: fs.NewFSAccountStore(t.TempDir())}
	clock := &testClock{now: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	sessions, err := ga.NewSessionManager([]byte(testSecret), ga.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to create session manager: %v", err)
	}
	auth := (&ga.GridAuth{
		Accounts: repo,
		Sessions: sessions,
		Hasher:   ga.NewBcryptHasher(bcrypt.MinCost),
	}).EnsureDefaults()
	return auth, repo, clock
}

func adaLovelace() *ga.RegistrationInput {
	return &ga.RegistrationInput{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Password:        "engine1",
		ConfirmPassword: "engine1",
		FavoriteTeam:    "Ferrari",
		FavoriteDriver:  "Leclerc",
	}
}
