//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// gridauth.AccountRepository. It is designed for deployment on Google Cloud
// Platform and supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - Account: the account record, keyed by account id
//   - AccountEmail: normalized email -> account id
//   - AccountFederated: provider:subject -> account id
//
// Datastore has no secondary unique indexes, so uniqueness comes from the
// lookup kinds: they are keyed by the unique value and written in the same
// transaction as the account.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	accounts := gae.NewAccountStore(client, "")  // default namespace
package gae
