package secondary

import (
	"context"
	"errors"
	"time"

	"github.com/quarrylane/lamina/platform/go/cloudflare"
)

// kvMinTTL is the smallest expiration Workers KV accepts; shorter TTLs are clamped up.
const kvMinTTL = 60 * time.Second

// KVStore backs secondary storage with a Workers KV namespace.
type KVStore struct {
	client *cloudflare.KVClient
}

// NewKVStore wraps a KV client.
func NewKVStore(client *cloudflare.KVClient) (*KVStore, error) {
	if client == nil {
		return nil, errors.New("kv client is required")
	}
	return &KVStore{client: client}, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key)
	if errors.Is(err, cloudflare.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 && ttl < kvMinTTL {
		ttl = kvMinTTL
	}
	return s.client.Put(ctx, key, value, ttl)
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	return s.client.Delete(ctx, key)
}

var _ Store = (*KVStore)(nil)
