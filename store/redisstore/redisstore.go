// Package redisstore persists migration records in Redis.
//
// Records live under a key prefix:
//
//	<prefix>:initialized  marker written by Initialize
//	<prefix>:states       hash of migration ID to state
//	<prefix>:order        list of migration IDs in first-write order
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aatuh/migratory"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "migratory"

// Config holds the Redis connection settings.
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// Store is a migratory.RecordStore backed by Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ migratory.RecordStore = (*Store)(nil)

// New returns a Store using client and the given key prefix. An empty
// prefix falls back to DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open connects to Redis as described by cfg and verifies the connection.
//
// Parameters:
//   - ctx: Context used for the initial ping.
//   - cfg: Connection settings.
//
// Returns:
//   - *Store: A new Store owning the client.
//   - error: An error if Redis cannot be reached.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.Prefix), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

// Initialize writes the initialization marker.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.client.Set(ctx, s.key("initialized"), "1", 0).Err(); err != nil {
		return fmt.Errorf("redis initialize: %w", err)
	}
	return nil
}

// IsInitialized reports whether the initialization marker exists.
func (s *Store) IsInitialized(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.key("initialized")).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Destroy removes every key under the prefix.
func (s *Store) Destroy(ctx context.Context) error {
	err := s.client.Del(ctx, s.key("initialized"), s.key("states"), s.key("order")).Err()
	if err != nil {
		return fmt.Errorf("redis destroy: %w", err)
	}
	return nil
}

// GetAllMigrationRecords returns every record in first-write order.
func (s *Store) GetAllMigrationRecords(ctx context.Context) ([]migratory.MigrationRecord, error) {
	ids, err := s.client.LRange(ctx, s.key("order"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, s.key("states"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get states: %w", err)
	}

	records := make([]migratory.MigrationRecord, 0, len(ids))
	for i, id := range ids {
		raw, ok := values[i].(string)
		if !ok {
			// Listed but without a state; skip the dangling entry.
			continue
		}
		state, err := migratory.ParseMigrationState(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		records = append(records, migratory.MigrationRecord{MigrationID: id, State: state})
	}
	return records, nil
}

// setStateScript writes the state and appends the ID to the order list in
// one step, so a record is never in the hash without its order entry.
var setStateScript = redis.NewScript(`
	if redis.call('HSET', KEYS[1], ARGV[1], ARGV[2]) == 1 then
		redis.call('RPUSH', KEYS[2], ARGV[1])
	end
	return 1
`)

// SetMigrationState upserts the record for id.
func (s *Store) SetMigrationState(
	ctx context.Context, id string, state migratory.MigrationState,
) error {
	keys := []string{s.key("states"), s.key("order")}
	if err := setStateScript.Run(ctx, s.client, keys, id, string(state)).Err(); err != nil {
		return fmt.Errorf("redis set state %s: %w", id, err)
	}
	return nil
}

// DeleteMigrationRecord removes the record for id if present.
func (s *Store) DeleteMigrationRecord(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.key("states"), id)
		pipe.LRem(ctx, s.key("order"), 0, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", id, err)
	}
	return nil
}
