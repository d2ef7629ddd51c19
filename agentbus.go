// Package agentbus provides a top-level convenience entry point for creating
// a started state bus with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentbus"
//
//	b, err := agentbus.New()                                  // in-memory store
//	b, err := agentbus.New(agentbus.WithFileStore("./data"))  // file-backed
//	b, err := agentbus.New(agentbus.WithSQLiteStore("state.db"))
//	defer b.Close()
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package agentbus

import (
	"github.com/BaSui01/agentbus/quick"
)

// Option configures the bus created by [New].
type Option = quick.Option

// Bus is a started state bus that owns the store it was built with.
type Bus = quick.Bus

// New creates and starts a [Bus] with minimal configuration. Without
// options it uses an in-memory store and default bus settings.
func New(opts ...Option) (*Bus, error) {
	return quick.New(opts...)
}

// Re-export construction options so callers never need to import quick/.

// WithStore sets a pre-built state store.
var WithStore = quick.WithStore

// WithMemoryStore selects the in-memory store. This is the default.
var WithMemoryStore = quick.WithMemoryStore

// WithFileStore selects the file store rooted at the given directory.
var WithFileStore = quick.WithFileStore

// WithSQLiteStore selects a SQLite-backed store at the given path.
var WithSQLiteStore = quick.WithSQLiteStore

// WithRedisStore selects a Redis-backed store at host:port.
var WithRedisStore = quick.WithRedisStore

// WithExpiryInterval sets the pending-action expiry scan interval.
var WithExpiryInterval = quick.WithExpiryInterval

// WithSubscriberBuffer sets the per-subscriber snapshot buffer capacity.
var WithSubscriberBuffer = quick.WithSubscriberBuffer

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger
