//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	ga "github.com/gridpicks/gridauth"
)

// AccountEntity is the Datastore entity for accounts
type AccountEntity struct {
	Key               *datastore.Key `datastore:"__key__"`
	Email             string         `datastore:"email"`
	PasswordHash      string         `datastore:"password_hash,noindex"`
	FederatedProvider string         `datastore:"federated_provider"`
	FederatedSubject  string         `datastore:"federated_subject"`
	FirstName         string         `datastore:"first_name,noindex"`
	LastName          string         `datastore:"last_name,noindex"`
	DisplayName       string         `datastore:"display_name,noindex"`
	AvatarURL         string         `datastore:"avatar_url,noindex"`
	FavoriteTeam      string         `datastore:"favorite_team"`
	FavoriteDriver    string         `datastore:"favorite_driver"`
	CreatedAt         time.Time      `datastore:"created_at"`
	UpdatedAt         time.Time      `datastore:"updated_at"`
	Version           int            `datastore:"version"`
}

// LookupEntity maps a unique value (email or provider:subject) to an account.
// Key format: the unique value itself
type LookupEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *AccountEntity) ToAccount() *ga.Account {
	out := &ga.Account{
		ID:             e.Key.Name,
		Email:          e.Email,
		PasswordHash:   e.PasswordHash,
		FirstName:      e.FirstName,
		LastName:       e.LastName,
		DisplayName:    e.DisplayName,
		AvatarURL:      e.AvatarURL,
		FavoriteTeam:   e.FavoriteTeam,
		FavoriteDriver: e.FavoriteDriver,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	if e.FederatedProvider != "" && e.FederatedSubject != "" {
		out.FederatedKey = &ga.FederatedKey{Provider: e.FederatedProvider, Subject: e.FederatedSubject}
	}
	return out
}

func AccountToEntity(a *ga.Account, key *datastore.Key) *AccountEntity {
	e := &AccountEntity{
		Key:            key,
		Email:          a.Email,
		PasswordHash:   a.PasswordHash,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		DisplayName:    a.DisplayName,
		AvatarURL:      a.AvatarURL,
		FavoriteTeam:   a.FavoriteTeam,
		FavoriteDriver: a.FavoriteDriver,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.IsFederated() {
		e.FederatedProvider = a.FederatedKey.Provider
		e.FederatedSubject = a.FederatedKey.Subject
	}
	return e
}
