//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	ga "github.com/gridpicks/gridauth"
)

// AutoMigrate runs database migrations for the gridauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{})
}

// AccountStore implements ga.AccountRepository and ga.AccountLister using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// isDuplicate recognizes unique index violations. Dialects that implement
// error translation (postgres, glebarez/sqlite) return gorm.ErrDuplicatedKey
// when the DB was opened with TranslateError; the string check covers the rest.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (s *AccountStore) findOne(query string, args ...any) (*ga.Account, error) {
	var model AccountModel
	if err := s.db.Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ga.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) FindByEmail(email string) (*ga.Account, error) {
	return s.findOne("email = ?", ga.NormalizeEmail(email))
}

func (s *AccountStore) FindByFederatedKey(provider, subject string) (*ga.Account, error) {
	return s.findOne("federated_provider = ? AND federated_subject = ?", strings.ToLower(provider), subject)
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

	model := AccountToModel(&out)
	if err := s.db.Create(model).Error; err != nil {
		if isDuplicate(err) {
			return nil, ga.ErrConstraintViolation
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) AttachFederatedKey(accountID string, key ga.FederatedKey) (*ga.Account, error) {
	key.Provider = strings.ToLower(key.Provider)
	var result *ga.Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model AccountModel
		if err := tx.First(&model, "id = ?", accountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ga.ErrAccountNotFound
			}
			return err
		}

		if current := model.ToAccount(); current.FederatedKey != nil {
			if *current.FederatedKey == key {
				result = current
				return nil
			}
			return ga.ErrConstraintViolation
		}

		// Only bind when still unbound; a concurrent attach leaves zero rows affected
		res := tx.Model(&AccountModel{}).
			Where("id = ? AND federated_provider IS NULL", accountID).
			Updates(map[string]any{
				"federated_provider": key.Provider,
				"federated_subject":  key.Subject,
			})
		if res.Error != nil {
			if isDuplicate(res.Error) {
				return ga.ErrConstraintViolation
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ga.ErrConstraintViolation
		}

		if err := tx.First(&model, "id = ?", accountID).Error; err != nil {
			return err
		}
		result = model.ToAccount()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAccounts returns up to limit accounts, oldest first. limit <= 0 returns all.
func (s *AccountStore) ListAccounts(limit int) ([]*ga.Account, error) {
	var models []AccountModel
	q := s.db.Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*ga.Account, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToAccount())
	}
	return out, nil
}
