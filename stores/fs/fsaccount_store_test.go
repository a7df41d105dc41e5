package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ga "github.com/gridpicks/gridauth"
	"github.com/gridpicks/gridauth/stores/fs"
	"github.com/gridpicks/gridauth/stores/storetest"
)

func TestFSAccountStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ga.AccountRepository {
		return fs.NewFSAccountStore(t.TempDir())
	})
}

func TestFSAccountStoreLayout(t *testing.T) {
	dir := t.TempDir()
	store := fs.NewFSAccountStore(dir)
	created, err := store.Create(&ga.Account{Email: "ada@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "accounts", created.ID+".json"))
	assert.NoError(t, err)

	emails, err := os.ReadDir(filepath.Join(dir, "emails"))
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.NotContains(t, emails[0].Name(), "ada", "index names do not leak emails")

	// a second store on the same directory sees the same index
	_, err = fs.NewFSAccountStore(dir).Create(&ga.Account{Email: "ada@example.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ga.ErrConstraintViolation)
}
