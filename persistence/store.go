// Package persistence provides durable storage for workflow state records.
//
// The bus depends on the narrow StateStore interface; everything else here
// is backend plumbing. Supported backends:
//   - Memory: for development and testing (default)
//   - File: for single-node deployments
//   - Redis: for distributed deployments
//   - SQL: Postgres/MySQL/SQLite through GORM
//   - Mongo: document storage
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/agentbus/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
	StoreTypeMongo  StoreType = "mongo"
)

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// StateStore persists workflow state records keyed by
// (workflow_id, workflow_type). Implementations must be safe for concurrent
// use across keys; the bus serializes access per key on its own.
type StateStore interface {
	Store

	// Save upserts a record by its workflow key. A save never partially
	// applies: concurrent saves of the same key resolve last-writer-wins.
	Save(ctx context.Context, record *types.StateRecord) error

	// Load retrieves a record by workflow key, ErrNotFound when absent.
	Load(ctx context.Context, workflowID, workflowType string) (*types.StateRecord, error)

	// ListNonTerminal returns every record whose step is not terminal.
	// Used at startup recovery.
	ListNonTerminal(ctx context.Context) ([]*types.StateRecord, error)
}

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// SQL configuration (only used when Type is "sql")
	SQL SQLStoreConfig `json:"sql" yaml:"sql"`

	// Mongo configuration (only used when Type is "mongo")
	Mongo MongoStoreConfig `json:"mongo" yaml:"mongo"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	// Host is the Redis server host
	Host string `json:"host" yaml:"host"`

	// Port is the Redis server port
	Port int `json:"port" yaml:"port"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// SQLStoreConfig contains SQL-specific configuration
type SQLStoreConfig struct {
	// Driver selects the dialect: postgres, mysql, or sqlite
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the driver-specific connection string
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`

	// AutoMigrate creates the schema on startup. Production deployments
	// run the migrate subcommand instead.
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`
}

// MongoStoreConfig contains MongoDB-specific configuration
type MongoStoreConfig struct {
	// URI is the MongoDB connection string
	URI string `json:"uri" yaml:"uri"`

	// Database is the database name
	Database string `json:"database" yaml:"database"`

	// Collection is the state record collection name
	Collection string `json:"collection" yaml:"collection"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/agentbus",
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "agentbus:",
		},
		SQL: SQLStoreConfig{
			Driver:          "sqlite",
			DSN:             "./data/agentbus/state.db",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
			AutoMigrate:     true,
		},
		Mongo: MongoStoreConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "agentbus",
			Collection: "state_records",
		},
	}
}

// terminalSteps returns the terminal step names for scan filters.
func terminalSteps() []string {
	return []string{string(types.StepCompleted), string(types.StepError)}
}

func validateRecord(record *types.StateRecord) error {
	if record == nil || record.WorkflowID == "" || record.WorkflowType == "" {
		return ErrInvalidInput
	}
	return nil
}
