package session

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyStore implements TokenStore using Valkey (Redis-compatible).
type ValkeyStore struct {
	client valkey.Client
}

func NewValkeyStore(addr string) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &ValkeyStore{client: client}, nil
}

func (s *ValkeyStore) Get(ctx context.Context, key string) (string, error) {
	tok, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", nil
	}
	return tok, err
}

func (s *ValkeyStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(token).Ex(ttl).Build()).Error()
}

func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error()
}

func (s *ValkeyStore) Close() {
	s.client.Close()
}
