package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"rxvc/pkg/domain"
)

const documentKeyPrefix = "did:doc:"

// Cached is a read-through Redis cache in front of another Resolver. Cache
// faults are logged and bypassed; they never fail a resolution.
type Cached struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next with a Redis cache holding documents for ttl.
func NewCached(next Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, client: client, ttl: ttl, logger: logger}
}

// Resolve returns the cached document or resolves and caches it.
func (c *Cached) Resolve(ctx context.Context, did domain.DID) (Document, error) {
	key := documentKeyPrefix + did.String()

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var doc Document
		if jsonErr := json.Unmarshal(raw, &doc); jsonErr == nil {
			return doc, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cached document", "did", did.String())
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "document cache read failed", "did", did.String(), "error", err)
	}

	doc, err := c.next.Resolve(ctx, did)
	if err != nil {
		return Document{}, err
	}

	data, err := json.Marshal(doc)
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.logger.WarnContext(ctx, "document cache write failed", "did", did.String(), "error", err)
	}
	return doc, nil
}

// Invalidate drops the cached document for did.
func (c *Cached) Invalidate(ctx context.Context, did domain.DID) error {
	return c.client.Del(ctx, documentKeyPrefix+did.String()).Err()
}
