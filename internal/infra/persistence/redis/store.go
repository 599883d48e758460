// Package redis persists client state buckets in a single Redis hash.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"sampleflow/pkg/domain"
)

var _ domain.StateStore = (*Store)(nil)

// DefaultKey is the hash holding every bucket.
const DefaultKey = "sampleflow:state"

// HashClient is the subset of the go-redis client the store needs.
type HashClient interface {
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd
	Close() error
}

// Store maps buckets to fields of one hash.
type Store struct {
	client HashClient
	key    string
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewStore(client, DefaultKey), nil
}

// NewStore wraps an existing client. An empty key selects DefaultKey.
func NewStore(client HashClient, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// Load implements domain.StateStore.
func (s *Store) Load(ctx context.Context) (map[string][]byte, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if errors.Is(err, goredis.Nil) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	out := make(map[string][]byte, len(fields))
	for bucket, payload := range fields {
		out[bucket] = []byte(payload)
	}
	return out, nil
}

// Save implements domain.StateStore. HSET with several fields is atomic.
func (s *Store) Save(ctx context.Context, buckets map[string][]byte) error {
	if len(buckets) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(buckets)*2)
	for bucket, payload := range buckets {
		values = append(values, bucket, string(payload))
	}
	if err := s.client.HSet(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", s.key, err)
	}
	return nil
}

// Close implements domain.StateStore.
func (s *Store) Close() error { return s.client.Close() }
