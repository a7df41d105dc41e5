//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ga "github.com/gridpicks/gridauth"
)

// Kind constants for Datastore entities
const (
	KindAccount          = "Account"
	KindAccountEmail     = "AccountEmail"
	KindAccountFederated = "AccountFederated"
)

// transactionAttempts bounds retries when concurrent registrations contend
// on the same lookup entity
const transactionAttempts = 10

// AccountStore implements ga.AccountRepository and ga.AccountLister using Google Cloud Datastore
type AccountStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store with the given context
func (s *AccountStore) WithContext(ctx context.Context) *AccountStore {
	return &AccountStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) emailKey(email string) *datastore.Key {
	return s.namespacedKey(KindAccountEmail, ga.NormalizeEmail(email))
}

func (s *AccountStore) federatedKey(key ga.FederatedKey) *datastore.Key {
	key.Provider = strings.ToLower(key.Provider)
	return s.namespacedKey(KindAccountFederated, key.String())
}

func (s *AccountStore) FindByEmail(email string) (*ga.Account, error) {
	return s.findByLookup(s.emailKey(email))
}

func (s *AccountStore) FindByFederatedKey(provider, subject string) (*ga.Account, error) {
	return s.findByLookup(s.federatedKey(ga.FederatedKey{Provider: provider, Subject: subject}))
}

func (s *AccountStore) findByLookup(key *datastore.Key) (*ga.Account, error) {
	var lookup LookupEntity
	if err := s.client.Get(s.ctx, key, &lookup); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ga.ErrAccountNotFound
		}
		return nil, err
	}
	var entity AccountEntity
	if err := s.client.Get(s.ctx, s.namespacedKey(KindAccount, lookup.AccountID), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ga.ErrAccountNotFound
		}
		return nil, err
	}
	return entity.ToAccount(), nil
}

// claim fails with ErrConstraintViolation if the lookup entity already exists
func claim(tx *datastore.Transaction, key *datastore.Key, accountID string, now time.Time) error {
	var existing LookupEntity
	err := tx.Get(key, &existing)
	if err == nil {
		return ga.ErrConstraintViolation
	}
	if err != datastore.ErrNoSuchEntity {
		return err
	}
	_, err = tx.Put(key, &LookupEntity{Key: key, AccountID: accountID, CreatedAt: now})
	return err
}

func (s *AccountStore) Create(account *ga.Account) (*ga.Account, error) {
	if err := account.CheckCredentials(); err != nil {
		return nil, err
	}
	out := *account
	if out.ID == "" {
		out.ID = ga.NewAccountID()
	}
	out.Email = ga.NormalizeEmail(out.Email)
	if out.FederatedKey != nil {
		key := *out.FederatedKey
		key.Provider = strings.ToLower(key.Provider)
		out.FederatedKey = &key
	}
	now := time.Now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now

	accountKey := s.namespacedKey(KindAccount, out.ID)
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		if err := claim(tx, s.emailKey(out.Email), out.ID, now); err != nil {
			return err
		}
		if out.IsFederated() {
			if err := claim(tx, s.federatedKey(*out.FederatedKey), out.ID, now); err != nil {
				return err
			}
		}
		_, err := tx.Put(accountKey, AccountToEntity(&out, accountKey))
		return err
	}, datastore.MaxAttempts(transactionAttempts))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AccountStore) AttachFederatedKey(accountID string, key ga.FederatedKey) (*ga.Account, error) {
	key.Provider = strings.ToLower(key.Provider)
	accountKey := s.namespacedKey(KindAccount, accountID)

	var result *ga.Account
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity AccountEntity
		if err := tx.Get(accountKey, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return ga.ErrAccountNotFound
			}
			return err
		}
		if current := entity.ToAccount(); current.FederatedKey != nil {
			if *current.FederatedKey == key {
				result = current
				return nil
			}
			return ga.ErrConstraintViolation
		}

		now := time.Now().UTC()
		if err := claim(tx, s.federatedKey(key), accountID, now); err != nil {
			return err
		}
		entity.FederatedProvider = key.Provider
		entity.FederatedSubject = key.Subject
		entity.UpdatedAt = now
		entity.Version++
		if _, err := tx.Put(accountKey, &entity); err != nil {
			return err
		}
		result = entity.ToAccount()
		return nil
	}, datastore.MaxAttempts(transactionAttempts))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAccounts returns up to limit accounts, oldest first. limit <= 0 returns all.
func (s *AccountStore) ListAccounts(limit int) ([]*ga.Account, error) {
	query := datastore.NewQuery(KindAccount).Order("created_at")
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	accounts := []*ga.Account{}
	it := s.client.Run(s.ctx, query)
	for {
		var entity AccountEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, entity.ToAccount())
	}
	return accounts, nil
}
