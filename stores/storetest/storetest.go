// Package storetest holds the behaviour every gridauth.AccountRepository
// implementation must share. Store packages call Run from their own tests.
package storetest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ga "github.com/gridpicks/gridauth"
)

// Factory returns an empty repository for a single subtest
type Factory func(t *testing.T) ga.AccountRepository

func localAccount(email string) *ga.Account {
	return &ga.Account{
		Email:        email,
		PasswordHash: "$2a$04$notarealhashnotarealhashnotarealhashnotarealhashnot",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		DisplayName:  "Ada Lovelace",
		FavoriteTeam: "Williams",
	}
}

func federatedAccount(email, provider, subject string) *ga.Account {
	return &ga.Account{
		Email:        email,
		FederatedKey: &ga.FederatedKey{Provider: provider, Subject: subject},
		DisplayName:  "Grace Hopper",
	}
}

// Run executes the shared repository contract against newRepo
func Run(t *testing.T, newRepo Factory) {
	t.Run("CreateAndFindByEmail", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(localAccount("Ada@Example.com"))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "ada@example.com", created.Email)

		found, err := repo.FindByEmail("ADA@example.com ")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "Williams", found.FavoriteTeam)
		assert.True(t, found.HasPassword())
		assert.False(t, found.IsFederated())
	})

	t.Run("FindMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByEmail("nobody@example.com")
		assert.True(t, errors.Is(err, ga.ErrAccountNotFound))

		_, err = repo.FindByFederatedKey("github", "42")
		assert.True(t, errors.Is(err, ga.ErrAccountNotFound))
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(localAccount("ada@example.com"))
		require.NoError(t, err)

		_, err = repo.Create(localAccount("ADA@example.com"))
		assert.True(t, errors.Is(err, ga.ErrConstraintViolation), "got %v", err)
	})

	t.Run("RejectsAccountWithoutCredentials", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(&ga.Account{Email: "ada@example.com"})
		assert.Error(t, err)

		_, err = repo.FindByEmail("ada@example.com")
		assert.True(t, errors.Is(err, ga.ErrAccountNotFound))
	})

	t.Run("FederatedKeyLookupAndUniqueness", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(federatedAccount("grace@example.com", "github", "1906"))
		require.NoError(t, err)

		found, err := repo.FindByFederatedKey("GitHub", "1906")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		require.True(t, found.IsFederated())
		assert.Equal(t, ga.FederatedKey{Provider: "github", Subject: "1906"}, *found.FederatedKey)

		_, err = repo.Create(federatedAccount("other@example.com", "github", "1906"))
		assert.True(t, errors.Is(err, ga.ErrConstraintViolation), "got %v", err)

		// same subject at another provider is a different key
		_, err = repo.Create(federatedAccount("other@example.com", "google", "1906"))
		assert.NoError(t, err)
	})

	t.Run("AttachFederatedKey", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(localAccount("ada@example.com"))
		require.NoError(t, err)

		key := ga.FederatedKey{Provider: "google", Subject: "g-1815"}
		linked, err := repo.AttachFederatedKey(created.ID, key)
		require.NoError(t, err)
		require.NotNil(t, linked.FederatedKey)
		assert.Equal(t, key, *linked.FederatedKey)
		assert.True(t, linked.HasPassword(), "linking keeps the password")

		found, err := repo.FindByFederatedKey("google", "g-1815")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)

		// idempotent for the same key
		_, err = repo.AttachFederatedKey(created.ID, key)
		assert.NoError(t, err)

		// never overwritten by another key
		_, err = repo.AttachFederatedKey(created.ID, ga.FederatedKey{Provider: "github", Subject: "7"})
		assert.True(t, errors.Is(err, ga.ErrConstraintViolation), "got %v", err)

		_, err = repo.AttachFederatedKey("missing-id", ga.FederatedKey{Provider: "github", Subject: "8"})
		assert.True(t, errors.Is(err, ga.ErrAccountNotFound), "got %v", err)
	})

	t.Run("AttachTakenKey", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(federatedAccount("grace@example.com", "github", "1906"))
		require.NoError(t, err)
		local, err := repo.Create(localAccount("ada@example.com"))
		require.NoError(t, err)

		_, err = repo.AttachFederatedKey(local.ID, ga.FederatedKey{Provider: "github", Subject: "1906"})
		assert.True(t, errors.Is(err, ga.ErrConstraintViolation), "got %v", err)
	})

	t.Run("ConcurrentCreateSameEmail", func(t *testing.T) {
		repo := newRepo(t)
		const workers = 8
		var wg sync.WaitGroup
		var ok, conflicts atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a := localAccount("race@example.com")
				a.FirstName = fmt.Sprintf("Racer%d", i)
				_, err := repo.Create(a)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, ga.ErrConstraintViolation):
					conflicts.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), ok.Load())
		assert.Equal(t, int32(workers-1), conflicts.Load())
	})

	t.Run("ListAccounts", func(t *testing.T) {
		repo := newRepo(t)
		lister, ok := repo.(ga.AccountLister)
		if !ok {
			t.Skip("repository does not implement AccountLister")
		}
		for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
			_, err := repo.Create(localAccount(email))
			require.NoError(t, err)
		}
		all, err := lister.ListAccounts(0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		for _, a := range all {
			assert.NotEmpty(t, a.ID)
		}

		some, err := lister.ListAccounts(2)
		require.NoError(t, err)
		assert.Len(t, some, 2)
	})
}
