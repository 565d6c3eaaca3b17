// Package rediscache stores assessments in Redis so the reuse window is shared
// across replicas.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "peril-risk:assessment:"

// Connect initializes a Redis client from a redis:// URL or a host:port
// address. Password and db apply to the host:port form only.
func Connect(_ context.Context, addr, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), nil
}

// Store implements fusion.Store. Entries expire after ttl; writes for the
// same property overwrite each other.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore wraps client. ttl should match the reuse window.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(propertyID string) string {
	return keyPrefix + propertyID
}

// Get returns the stored assessment for propertyID, if any.
func (s *Store) Get(ctx context.Context, propertyID string) (domain.RiskAssessment, bool, error) {
	raw, err := s.client.Get(ctx, key(propertyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RiskAssessment{}, false, nil
	}
	if err != nil {
		return domain.RiskAssessment{}, false, fmt.Errorf("redis get: %w", err)
	}
	var a domain.RiskAssessment
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.RiskAssessment{}, false, fmt.Errorf("decode assessment: %w", err)
	}
	return a, true, nil
}

// Put stores a under its property id.
func (s *Store) Put(ctx context.Context, a domain.RiskAssessment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	if err := s.client.Set(ctx, key(a.PropertyID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}
