//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	ga "github.com/gridpicks/gridauth"
)

// AccountModel is the GORM model for accounts
type AccountModel struct {
	ID                string    `gorm:"primaryKey;size:64"`
	Email             string    `gorm:"size:255;uniqueIndex"`
	PasswordHash      string    `gorm:"size:255"`
	FederatedProvider *string   `gorm:"size:32;uniqueIndex:idx_accounts_federated"`
	FederatedSubject  *string   `gorm:"size:255;uniqueIndex:idx_accounts_federated"`
	FirstName         string    `gorm:"size:128"`
	LastName          string    `gorm:"size:128"`
	DisplayName       string    `gorm:"size:255"`
	AvatarURL         string    `gorm:"size:1024"`
	FavoriteTeam      string    `gorm:"size:64"`
	FavoriteDriver    string    `gorm:"size:64"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *ga.Account {
	out := &ga.Account{
		ID:             m.ID,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		DisplayName:    m.DisplayName,
		AvatarURL:      m.AvatarURL,
		FavoriteTeam:   m.FavoriteTeam,
		FavoriteDriver: m.FavoriteDriver,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.FederatedProvider != nil && m.FederatedSubject != nil {
		out.FederatedKey = &ga.FederatedKey{Provider: *m.FederatedProvider, Subject: *m.FederatedSubject}
	}
	return out
}

func AccountToModel(a *ga.Account) *AccountModel {
	m := &AccountModel{
		ID:             a.ID,
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
		provider, subject := a.FederatedKey.Provider, a.FederatedKey.Subject
		m.FederatedProvider, m.FederatedSubject = &provider, &subject
	}
	return m
}
