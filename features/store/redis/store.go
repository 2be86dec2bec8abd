// Package redis provides a store.Store backed by Redis. Records are plain
// keys under a configurable prefix with one index set per kind so listing
// never scans the keyspace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"goa.design/clue/health"

	"github.com/arcline-ai/arcline/runtime/agent/store"
)

const (
	defaultPrefix = "arcline"
	clientName    = "store-redis"
)

// Options configures the Redis store.
type Options struct {
	// Client is the connected Redis client. Required.
	Client *goredis.Client
	// Prefix namespaces keys. Defaults to "arcline".
	Prefix string
	// TTL expires records when positive. Terminal process snapshots are
	// usually kept; set a TTL for fire-and-forget deployments.
	TTL time.Duration
}

// commands narrows the client surface the store touches so tests can stand in
// a fake without a running Redis. *goredis.Client satisfies it as is.
type commands interface {
	Ping(ctx context.Context) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
	SMembers(ctx context.Context, key string) *goredis.StringSliceCmd
	TxPipeline() goredis.Pipeliner
}

// Store implements store.Store and health.Pinger on Redis.
type Store struct {
	client commands
	prefix string
	ttl    time.Duration
}

var _ store.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// New returns a Redis-backed store.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis: client is required")
	}
	return newStoreWithCommands(opts.Client, opts.Prefix, opts.TTL)
}

func newStoreWithCommands(client commands, prefix string, ttl time.Duration) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}, nil
}

// Name implements health.Pinger.
func (s *Store) Name() string { return clientName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Put implements store.Store. The record write and index update run in one
// pipeline so a listed id always resolves.
func (s *Store) Put(ctx context.Context, kind store.Kind, id string, data []byte) error {
	if id == "" {
		return errors.New("redis: record id is required")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(kind, id), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(kind), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put %s/%s: %w", kind, id, err)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, kind store.Kind, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s/%s: %w", kind, id, err)
	}
	return data, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, kind store.Kind, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(kind, id))
	pipe.SRem(ctx, s.indexKey(kind), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete %s/%s: %w", kind, id, err)
	}
	return nil
}

// List implements store.Store. Expired records are pruned from the index
// lazily on the next Get miss, so a listed id may be briefly stale when TTLs
// are in use.
func (s *Store) List(ctx context.Context, kind store.Kind) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list %s: %w", kind, err)
	}
	return ids, nil
}

func (s *Store) key(kind store.Kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, id)
}

func (s *Store) indexKey(kind store.Kind) string {
	return fmt.Sprintf("%s:%s:index", s.prefix, kind)
}
