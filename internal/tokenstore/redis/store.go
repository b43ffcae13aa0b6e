// Package redis implements the session token store on Redis so that portal
// sessions survive a restart of the portal process.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
)

const keyPrefix = "sumatin:session:"

const (
	accessKey  = "access_token"
	refreshKey = "refresh_token"
	userKey    = "user"
)

// Store implements tokenstore.Store for a single portal session.
type Store struct {
	client redis.UniversalClient
	sid    string
	ttl    time.Duration
}

// NewStore creates a Redis-backed store for the session sid. A zero ttl
// keeps keys without expiry.
func NewStore(client redis.UniversalClient, sid string, ttl time.Duration) *Store {
	return &Store{client: client, sid: sid, ttl: ttl}
}

func (s *Store) key(name string) string {
	return keyPrefix + s.sid + ":" + name
}

func (s *Store) getString(ctx context.Context, name string) (string, error) {
	v, err := s.client.Get(ctx, s.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get %s: %w", name, err)
	}
	return v, nil
}

// Access returns the stored access token or "".
func (s *Store) Access(ctx context.Context) (string, error) {
	return s.getString(ctx, accessKey)
}

// Refresh returns the stored refresh token or "".
func (s *Store) Refresh(ctx context.Context) (string, error) {
	return s.getString(ctx, refreshKey)
}

// SetTokens writes both tokens in one transaction so readers never observe
// a new access token paired with an old refresh token.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(accessKey), access, s.ttl)
		pipe.Set(ctx, s.key(refreshKey), refresh, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set tokens: %w", err)
	}
	return nil
}

// SwapTokens replaces the pair under WATCH on the refresh key, so a Clear
// racing with it either lands first and wins or aborts the swap.
func (s *Store) SwapTokens(ctx context.Context, prev, access, refresh string) (bool, error) {
	if prev == "" {
		return false, nil
	}
	swapped := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, s.key(refreshKey)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != prev {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(accessKey), access, s.ttl)
			pipe.Set(ctx, s.key(refreshKey), refresh, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, s.key(refreshKey))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis swap tokens: %w", err)
	}
	return swapped, nil
}

// Clear removes both tokens. The cached user is left in place.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(accessKey), s.key(refreshKey)).Err(); err != nil {
		return fmt.Errorf("redis del tokens: %w", err)
	}
	return nil
}

// CachedUser returns the cached user record or nil.
func (s *Store) CachedUser(ctx context.Context) (*domain.User, error) {
	data, err := s.client.Get(ctx, s.key(userKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get user: %w", err)
	}

	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// SetCachedUser replaces the cached user record.
func (s *Store) SetCachedUser(ctx context.Context, u domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userKey), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set user: %w", err)
	}
	return nil
}

// ClearCachedUser removes the cached user record.
func (s *Store) ClearCachedUser(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(userKey)).Err(); err != nil {
		return fmt.Errorf("redis del user: %w", err)
	}
	return nil
}

// Provider hands out Redis stores that share one client.
type Provider struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewProvider creates a Provider whose keys expire after ttl.
func NewProvider(client redis.UniversalClient, ttl time.Duration) *Provider {
	return &Provider{client: client, ttl: ttl}
}

// ForSession implements tokenstore.Provider.
func (p *Provider) ForSession(sid string) tokenstore.Store {
	return NewStore(p.client, sid, p.ttl)
}
