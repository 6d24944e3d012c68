// Package cache memoizes resolved permission sets so hot request paths
// do not repeat the role join on every call.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbuslab/crewbase/internal/common/config"
)

// ErrMiss indicates the key is not cached. Callers fall through to the
// database and repopulate.
var ErrMiss = errors.New("cache: miss")

// PermissionCache stores the flattened permission names of a user.
type PermissionCache interface {
	// GetPermissions returns the cached permission set, or ErrMiss.
	GetPermissions(ctx context.Context, userID uint) ([]string, error)
	// SetPermissions replaces the cached set for a user.
	SetPermissions(ctx context.Context, userID uint, names []string) error
	// Invalidate drops the cached set for a user. Missing keys are not an error.
	Invalidate(ctx context.Context, userID uint) error
	// InvalidateAll drops every cached set. Used after role-level mutations
	// whose affected users are not enumerable from the request.
	InvalidateAll(ctx context.Context) error
	Close() error
}

// NewPermissionCache creates a cache based on the configured type.
func NewPermissionCache(cfg *config.CacheConfig) (PermissionCache, error) {
	switch cfg.Type {
	case "redis":
		return newRedisCache(cfg)
	case "memory", "":
		return newMemoryCache(cfg.TTL), nil
	case "none":
		return noopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

type noopCache struct{}

func (noopCache) GetPermissions(context.Context, uint) ([]string, error) { return nil, ErrMiss }
func (noopCache) SetPermissions(context.Context, uint, []string) error   { return nil }
func (noopCache) Invalidate(context.Context, uint) error                 { return nil }
func (noopCache) InvalidateAll(context.Context) error                    { return nil }
func (noopCache) Close() error                                           { return nil }

func permissionKey(prefix string, userID uint) string {
	return fmt.Sprintf("%s:perms:user:%d", keyPrefix(prefix), userID)
}

func permissionKeyPattern(prefix string) string {
	return keyPrefix(prefix) + ":perms:user:*"
}

func keyPrefix(prefix string) string {
	if prefix == "" {
		return "crewbase"
	}
	return prefix
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}
