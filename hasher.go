package gridauth

import (
	"context"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultBcryptCost matches the work factor existing account hashes were created with
const DefaultBcryptCost = 12

// PasswordHasher turns plaintext passwords into salted one-way hashes
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
}

// BcryptHasher hashes with bcrypt at a fixed cost
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) cost() int {
	if h.Cost == 0 {
		return DefaultBcryptCost
	}
	return h.Cost
}

// Hash returns a self describing bcrypt hash (algorithm, cost and salt embedded).
// A fresh salt is drawn on every call.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost())
	if err != nil {
		return "", &AuthError{Code: ErrCodeHashing, Message: ErrHashing.Message, Err: err}
	}
	return string(hashed), nil
}

// Verify returns false for mismatches and for malformed hashes alike
func (h *BcryptHasher) Verify(plaintext, hashed string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

// PooledHasher bounds how many hash/verify calls run at once
type PooledHasher struct {
	Hasher PasswordHasher
	sem    *semaphore.Weighted
}

// NewPooledHasher wraps h; workers <= 0 uses GOMAXPROCS
func NewPooledHasher(h PasswordHasher, workers int) *PooledHasher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &PooledHasher{Hasher: h, sem: semaphore.NewWeighted(int64(workers))}
}

func (p *PooledHasher) Hash(plaintext string) (string, error) {
	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		return "", &AuthError{Code: ErrCodeHashing, Message: ErrHashing.Message, Err: err}
	}
	defer p.sem.Release(1)
	return p.Hasher.Hash(plaintext)
}

func (p *PooledHasher) Verify(plaintext, hashed string) bool {
	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		return false
	}
	defer p.sem.Release(1)
	return p.Hasher.Verify(plaintext, hashed)
}
