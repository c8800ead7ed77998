package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// endpointNamespace holds discovered API endpoints.
const endpointNamespace = "endpoint"

// EndpointStore remembers the API endpoint discovered for an access id.
// It satisfies client.EndpointCache.
type EndpointStore struct {
	manager *Manager
}

// NewEndpointStore wraps a manager.
func NewEndpointStore(manager *Manager) *EndpointStore {
	return &EndpointStore{manager: manager}
}

// GetEndpoint returns the cached endpoint for accessID. A miss is reported
// with ok == false and a nil error.
func (s *EndpointStore) GetEndpoint(ctx context.Context, accessID string) (string, bool, error) {
	entry, err := s.manager.Get(ctx, EndpointKey(accessID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(entry.Data), true, nil
}

// SetEndpoint stores endpoint for accessID for ttl.
func (s *EndpointStore) SetEndpoint(ctx context.Context, accessID, endpoint string, ttl time.Duration) error {
	return s.manager.Set(ctx, EndpointKey(accessID), NewEntry([]byte(endpoint), ttl))
}

// EndpointKey returns the key for accessID. The id is hashed so credentials
// never appear in Redis.
func EndpointKey(accessID string) Key {
	sum := sha256.Sum256([]byte(accessID))
	return Key{Namespace: endpointNamespace, Parts: []string{hex.EncodeToString(sum[:8])}}
}
