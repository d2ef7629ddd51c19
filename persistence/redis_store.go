package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentbus/types"
)

// RedisStateStore is a Redis-based implementation of StateStore.
// Suitable for distributed deployments. Records are stored as JSON strings
// with a sorted-set index over non-terminal keys for the recovery scan.
type RedisStateStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore creates a new Redis-based state store
func NewRedisStateStore(config StoreConfig) (*RedisStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agentbus:"
	}

	return NewRedisStateStoreWithClient(client, keyPrefix), nil
}

// NewRedisStateStoreWithClient wraps an existing client. Used by tests.
func NewRedisStateStoreWithClient(client *redis.Client, keyPrefix string) *RedisStateStore {
	return &RedisStateStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// recordKey returns the Redis key for a record
func (s *RedisStateStore) recordKey(workflowID, workflowType string) string {
	return s.keyPrefix + "record:" + workflowType + ":" + workflowID
}

// nonTerminalKey returns the Redis key for the non-terminal index
func (s *RedisStateStore) nonTerminalKey() string {
	return s.keyPrefix + "nonterminal"
}

// indexMember encodes a workflow key as a sorted-set member
func indexMember(workflowID, workflowType string) string {
	return workflowType + "/" + workflowID
}

// Save persists a record and maintains the non-terminal index
func (s *RedisStateStore) Save(ctx context.Context, record *types.StateRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	member := indexMember(record.WorkflowID, record.WorkflowType)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.recordKey(record.WorkflowID, record.WorkflowType), data, 0)
	if record.IsTerminal() {
		pipe.ZRem(ctx, s.nonTerminalKey(), member)
	} else {
		pipe.ZAdd(ctx, s.nonTerminalKey(), redis.Z{
			Score:  float64(record.UpdatedAt.UnixNano()),
			Member: member,
		})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Load retrieves a record by workflow key
func (s *RedisStateStore) Load(ctx context.Context, workflowID, workflowType string) (*types.StateRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(workflowID, workflowType)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var record types.StateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

// ListNonTerminal walks the non-terminal index and loads each record
func (s *RedisStateStore) ListNonTerminal(ctx context.Context) ([]*types.StateRecord, error) {
	members, err := s.client.ZRange(ctx, s.nonTerminalKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*types.StateRecord, 0, len(members))
	for _, member := range members {
		parts := strings.SplitN(member, "/", 2)
		if len(parts) != 2 {
			continue
		}
		record, err := s.Load(ctx, parts[1], parts[0])
		if err == ErrNotFound {
			// Stale index entry, drop it.
			s.client.ZRem(ctx, s.nonTerminalKey(), member)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !record.IsTerminal() {
			result = append(result, record)
		}
	}
	return result, nil
}

// Ping checks if the store is healthy
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
