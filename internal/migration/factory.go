package migration

import (
	"fmt"

	"github.com/BaSui01/agentbus/persistence"
)

// NewMigratorFromStoreConfig creates a migrator for the configured SQL
// store. The store's DSN is reused as the migration connection string.
func NewMigratorFromStoreConfig(cfg persistence.SQLStoreConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database driver: %w", err)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  cfg.DSN,
		TableName:    "schema_migrations",
	})
}

// NewMigratorFromURL creates a migrator from an explicit dialect and
// connection string.
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
