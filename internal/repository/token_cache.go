package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/qcom/phoneverify/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// TokenCache stores access tokens keyed by their scope set.
// Get returns (nil, nil) when nothing usable is stored.
type TokenCache interface {
	Get(ctx context.Context, key string) (*models.AccessToken, error)
	Set(ctx context.Context, key string, token *models.AccessToken) error
	Delete(ctx context.Context, key string) error
}

// ScopeKey returns a canonical cache key for a scope set: sorted,
// de-duplicated and space-joined.
func ScopeKey(scopes []string) string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		for _, f := range strings.Fields(s) {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

type MemoryTokenCache struct {
	mu     sync.RWMutex
	tokens map[string]*models.AccessToken
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]*models.AccessToken)}
}

func (c *MemoryTokenCache) Get(_ context.Context, key string) (*models.AccessToken, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tok, ok := c.tokens[key]
	if !ok {
		return nil, nil
	}
	cp := *tok
	return &cp, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, key string, token *models.AccessToken) error {
	cp := *token
	c.mu.Lock()
	c.tokens[key] = &cp
	c.mu.Unlock()
	return nil
}

func (c *MemoryTokenCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
	return nil
}

// RedisTokenCache shares tokens between replicas. Entries expire in Redis
// at the token's own expiry.
type RedisTokenCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logrus.Logger
}

func NewRedisTokenCache(client *redis.Client, keyPrefix string, logger *logrus.Logger) *RedisTokenCache {
	if keyPrefix == "" {
		keyPrefix = "phoneverify:token:"
	}
	return &RedisTokenCache{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (*models.AccessToken, error) {
	dataJSON, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached token: %w", err)
	}

	var token models.AccessToken
	if err := json.Unmarshal([]byte(dataJSON), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached token: %w", err)
	}

	return &token, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, key string, token *models.AccessToken) error {
	ttl := time.Until(token.ExpiresAt())
	if ttl <= 0 {
		return nil
	}

	dataJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, dataJSON, ttl).Err(); err != nil {
		c.logger.WithError(err).Error("Failed to store token in Redis")
		return fmt.Errorf("failed to store token: %w", err)
	}

	return nil
}

func (c *RedisTokenCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cached token: %w", err)
	}
	return nil
}
