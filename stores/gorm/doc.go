//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-backed gridauth.AccountRepository.
// It works with any database GORM supports (PostgreSQL in production,
// SQLite for tests and single node deployments).
//
// # Database Schema
//
// AutoMigrate creates a single accounts table with:
//   - a unique index on email
//   - a composite unique index on (federated_provider, federated_subject)
//
// Both indexes are what make concurrent registrations and first federated
// sign-ins safe; the store maps their violations to gridauth.ErrConstraintViolation.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	_ = gormstore.AutoMigrate(db)
//	accounts := gormstore.NewAccountStore(db)
package gorm
