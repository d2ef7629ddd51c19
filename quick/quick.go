// =============================================================================
// Package quick — One-Line Bus Construction
// =============================================================================
// Provides a convenience entry point for creating a started state bus with
// minimal boilerplate. Delegates to bus.New and persistence.NewStateStore
// internally.
//
// Usage:
//
//	import "github.com/BaSui01/agentbus/quick"
//
//	b, err := quick.New()                                  // in-memory store
//	b, err := quick.New(quick.WithFileStore("./data"))     // file-backed
//	b, err := quick.New(quick.WithSQLiteStore("state.db")) // SQLite-backed
//	defer b.Close()
//
// =============================================================================
package quick

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentbus/bus"
	"github.com/BaSui01/agentbus/persistence"
)

// Option configures the bus created by New.
type Option func(*options)

type options struct {
	storeCfg persistence.StoreConfig
	store    persistence.StateStore
	busCfg   bus.Config
	logger   *zap.Logger
}

// WithStore sets a pre-built state store. Close will not close a store
// passed this way; its lifecycle stays with the caller.
func WithStore(s persistence.StateStore) Option {
	return func(o *options) { o.store = s }
}

// WithMemoryStore selects the in-memory store. This is the default.
func WithMemoryStore() Option {
	return func(o *options) { o.storeCfg.Type = persistence.StoreTypeMemory }
}

// WithFileStore selects the file store rooted at dir.
func WithFileStore(dir string) Option {
	return func(o *options) {
		o.storeCfg.Type = persistence.StoreTypeFile
		o.storeCfg.BaseDir = dir
	}
}

// WithSQLiteStore selects a SQLite-backed store at the given path.
// The schema is created automatically on first open.
func WithSQLiteStore(path string) Option {
	return func(o *options) {
		o.storeCfg.Type = persistence.StoreTypeSQL
		o.storeCfg.SQL.Driver = "sqlite"
		o.storeCfg.SQL.DSN = path
		o.storeCfg.SQL.AutoMigrate = true
	}
}

// WithRedisStore selects a Redis-backed store at host:port.
func WithRedisStore(host string, port int) Option {
	return func(o *options) {
		o.storeCfg.Type = persistence.StoreTypeRedis
		o.storeCfg.Redis.Host = host
		o.storeCfg.Redis.Port = port
	}
}

// WithExpiryInterval sets the pending-action expiry scan interval.
func WithExpiryInterval(d time.Duration) Option {
	return func(o *options) { o.busCfg.ExpiryInterval = d }
}

// WithSubscriberBuffer sets the per-subscriber snapshot buffer capacity.
func WithSubscriberBuffer(n int) Option {
	return func(o *options) { o.busCfg.SubscriberBuffer = n }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Bus is a started state bus that owns the store it was built with.
type Bus struct {
	*bus.Bus

	store     persistence.StateStore
	ownsStore bool
}

// Close stops the bus and, when the store was built by New, closes it.
// A store passed via WithStore is left open.
func (b *Bus) Close() error {
	err := b.Stop()
	if b.ownsStore {
		if cerr := b.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// New creates and starts a state bus with minimal configuration.
// Without options it uses an in-memory store and default bus settings.
func New(opts ...Option) (*Bus, error) {
	o := &options{
		storeCfg: persistence.DefaultStoreConfig(),
		busCfg:   bus.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	// Resolve store.
	store := o.store
	ownsStore := false
	if store == nil {
		var err error
		store, err = persistence.NewStateStore(o.storeCfg)
		if err != nil {
			return nil, fmt.Errorf("create state store: %w", err)
		}
		ownsStore = true
	}

	b := bus.New(store, o.busCfg, o.logger)
	if err := b.Start(context.Background()); err != nil {
		if ownsStore {
			store.Close()
		}
		return nil, fmt.Errorf("start bus: %w", err)
	}

	return &Bus{Bus: b, store: store, ownsStore: ownsStore}, nil
}
