package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	ga "github.com/gridpicks/gridauth"
)

// FSAccountStore stores accounts as JSON files.
//
// Layout under StoragePath:
//
//	accounts/<id>.json        the account record
//	emails/<sha256>.json      email -> account id
//	federated/<sha256>.json   provider:subject -> account id
//
// Index files are created with O_EXCL, so uniqueness also holds between
// processes sharing the directory.
type FSAccountStore struct {
	StoragePath string
	mu          sync.Mutex
}

type indexEntry struct {
	Key       string `json:"key"`
	AccountID string `json:"account_id"`
}

func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

func (s *FSAccountStore) accountPath(id string) string {
	return filepath.Join(s.StoragePath, "accounts", filepath.Base(id)+".json")
}

func (s *FSAccountStore) emailIndexPath(email string) string {
	return filepath.Join(s.StoragePath, "emails", safeName(email)+".json")
}

func (s *FSAccountStore) federatedIndexPath(key ga.FederatedKey) string {
	return filepath.Join(s.StoragePath, "federated", safeName(key.String())+".json")
}

func (s *FSAccountStore) FindByEmail(email string) (*ga.Account, error) {
	return s.findByIndex(s.emailIndexPath(ga.NormalizeEmail(email)))
}

func (s *FSAccountStore) FindByFederatedKey(provider, subject string) (*ga.Account, error) {
	key := ga.FederatedKey{Provider: strings.ToLower(provider), Subject: subject}
	return s.findByIndex(s.federatedIndexPath(key))
}

func (s *FSAccountStore) findByIndex(path string) (*ga.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ga.ErrAccountNotFound
		}
		return nil, err
	}
	var entry indexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt index %s: %w", filepath.Base(path), err)
	}
	return s.loadAccount(entry.AccountID)
}

func (s *FSAccountStore) loadAccount(id string) (*ga.Account, error) {
	data, err := os.ReadFile(s.accountPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ga.ErrAccountNotFound
		}
		return nil, err
	}
	var account ga.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *FSAccountStore) saveAccount(account *ga.Account) error {
	path := s.accountPath(account.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

// claimIndex creates an index file, failing with ErrConstraintViolation if it exists
func (s *FSAccountStore) claimIndex(path, key, accountID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ga.ErrConstraintViolation
		}
		return err
	}
	data, _ := json.Marshal(indexEntry{Key: key, AccountID: accountID})
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return werr
	}
	return nil
}

func (s *FSAccountStore) Create(account *ga.Account) (*ga.Account, error) {
	if err := account.CheckCredentials(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := *account
	if out.ID == "" {
		out.ID = ga.NewAccountID()
	}
	out.Email = ga.NormalizeEmail(out.Email)
	now := time.Now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now

	emailPath := s.emailIndexPath(out.Email)
	if err := s.claimIndex(emailPath, out.Email, out.ID); err != nil {
		return nil, err
	}
	var fedPath string
	if out.FederatedKey != nil {
		key := *out.FederatedKey
		key.Provider = strings.ToLower(key.Provider)
		out.FederatedKey = &key
		fedPath = s.federatedIndexPath(key)
		if err := s.claimIndex(fedPath, key.String(), out.ID); err != nil {
			os.Remove(emailPath)
			return nil, err
		}
	}
	if err := s.saveAccount(&out); err != nil {
		os.Remove(emailPath)
		if fedPath != "" {
			os.Remove(fedPath)
		}
		return nil, err
	}
	return &out, nil
}

func (s *FSAccountStore) AttachFederatedKey(accountID string, key ga.FederatedKey) (*ga.Account, error) {
	key.Provider = strings.ToLower(key.Provider)
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.loadAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account.FederatedKey != nil {
		if *account.FederatedKey == key {
			return account, nil
		}
		return nil, ga.ErrConstraintViolation
	}

	fedPath := s.federatedIndexPath(key)
	if err := s.claimIndex(fedPath, key.String(), account.ID); err != nil {
		return nil, err
	}
	account.FederatedKey = &key
	account.UpdatedAt = time.Now().UTC()
	if err := s.saveAccount(account); err != nil {
		os.Remove(fedPath)
		return nil, err
	}
	return account, nil
}

// ListAccounts returns up to limit accounts, oldest first. limit <= 0 returns all.
func (s *FSAccountStore) ListAccounts(limit int) ([]*ga.Account, error) {
	dir := filepath.Join(s.StoragePath, "accounts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*ga.Account{}, nil
		}
		return nil, err
	}

	var accounts []*ga.Account
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		account, err := s.loadAccount(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}
