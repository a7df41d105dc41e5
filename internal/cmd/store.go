package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/datastore"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	ga "github.com/gridpicks/gridauth"
	"github.com/gridpicks/gridauth/stores/fs"
	"github.com/gridpicks/gridauth/stores/gae"
	gormstore "github.com/gridpicks/gridauth/stores/gorm"
)

// storeOptions selects and configures the account repository
type storeOptions struct {
	Kind      string // fs, postgres, sqlite or datastore
	DataDir   string
	DSN       string
	ProjectID string
	Namespace string
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("store", "fs", "account store: fs, postgres, sqlite or datastore")
	f.String("data-dir", "./data", "directory for the fs store")
	f.String("dsn", "", "database DSN for the postgres or sqlite store")
	f.String("project", "", "GCP project for the datastore store")
	f.String("namespace", "", "datastore namespace")
}

func storeOptionsFromFlags(cmd *cobra.Command) storeOptions {
	var o storeOptions
	o.Kind, _ = cmd.Flags().GetString("store")
	o.DataDir, _ = cmd.Flags().GetString("data-dir")
	o.DSN, _ = cmd.Flags().GetString("dsn")
	o.ProjectID, _ = cmd.Flags().GetString("project")
	o.Namespace, _ = cmd.Flags().GetString("namespace")
	return o
}

// openedStore is the repository plus what it needs to shut down
type openedStore struct {
	Accounts ga.AccountRepository
	DB       *gorm.DB // set for the relational stores
	close    func()
}

func (s *openedStore) Close() {
	if s.close != nil {
		s.close()
	}
}

func openGORM(o storeOptions) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch o.Kind {
	case "postgres":
		if o.DSN == "" {
			return nil, errors.New("--dsn is required for the postgres store")
		}
		dialector = postgres.Open(o.DSN)
	case "sqlite":
		dsn := o.DSN
		if dsn == "" {
			dsn = "gridauth.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%s is not a relational store", o.Kind)
	}
	return gorm.Open(dialector, &gorm.Config{TranslateError: true})
}

func openStore(ctx context.Context, o storeOptions) (*openedStore, error) {
	switch o.Kind {
	case "fs", "":
		slog.Info("using fs account store", "dir", o.DataDir)
		return &openedStore{Accounts: fs.NewFSAccountStore(o.DataDir)}, nil

	case "postgres", "sqlite":
		db, err := openGORM(o)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", o.Kind, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		slog.Info("using gorm account store", "dialect", db.Dialector.Name())
		return &openedStore{
			Accounts: gormstore.NewAccountStore(db),
			DB:       db,
			close:    func() { sqlDB.Close() },
		}, nil

	case "datastore":
		client, err := datastore.NewClient(ctx, o.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("opening datastore: %w", err)
		}
		slog.Info("using datastore account store", "project", o.ProjectID, "namespace", o.Namespace)
		return &openedStore{
			Accounts: gae.NewAccountStore(client, o.Namespace).WithContext(ctx),
			close:    func() { client.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown store %q", o.Kind)
}
