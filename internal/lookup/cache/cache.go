// Package cache memoizes lookup responses in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/common/metrics"
	"applicant-registry/internal/lookup"
)

const keyPrefix = "lookup:"

// Cache wraps a Lookuper. Redis failures never fail a lookup; they are
// logged and the request falls through to the wrapped Lookuper.
type Cache struct {
	next    lookup.Lookuper
	client  redis.Cmdable
	ttl     time.Duration
	version string
	logger  logger.Logger
}

// New returns a caching Lookuper. Scorer settings are folded into every key
// so a weight or threshold change never serves stale rankings.
func New(next lookup.Lookuper, client redis.Cmdable, ttl time.Duration, scorer *lookup.Scorer, log logger.Logger) *Cache {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	version := ""
	if scorer != nil {
		version = scorer.Weights().Fingerprint() + "|" + strconv.FormatFloat(scorer.Threshold(), 'g', -1, 64)
	}
	return &Cache{
		next:    next,
		client:  client,
		ttl:     ttl,
		version: version,
		logger:  log.WithFields(map[string]interface{}{"component": "lookup-cache"}),
	}
}

// Key derives the cache key from the kind and the active criteria only, so
// blank fields hit the same entry as omitted ones.
func Key(req lookup.SearchRequest, version string) string {
	parts := make([]string, 0, len(req.Criteria))
	for _, f := range req.ActiveFields() {
		c, _ := req.Active(f.Name)
		parts = append(parts, string(f.Name)+"="+c.String())
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte(version))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return keyPrefix + string(req.Kind) + ":" + hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Execute(ctx context.Context, req lookup.SearchRequest) (*lookup.Response, error) {
	if err := req.Validate(); err != nil {
		return c.next.Execute(ctx, req)
	}
	key := Key(req, c.version)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		resp := &lookup.Response{Kind: req.Kind}
		decodeErr := json.Unmarshal([]byte(cached), resp)
		if decodeErr == nil {
			resp.Kind = req.Kind
			metrics.LookupCacheEvents.WithLabelValues(metrics.CacheHit).Inc()
			return resp, nil
		}
		metrics.LookupCacheEvents.WithLabelValues(metrics.CacheError).Inc()
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"key": key, "error": decodeErr.Error()})
	case errors.Is(err, redis.Nil):
		metrics.LookupCacheEvents.WithLabelValues(metrics.CacheMiss).Inc()
	default:
		metrics.LookupCacheEvents.WithLabelValues(metrics.CacheError).Inc()
		c.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	resp, err := c.next.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache encode failed", map[string]interface{}{"key": key, "error": err.Error()})
		return resp, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		metrics.LookupCacheEvents.WithLabelValues(metrics.CacheError).Inc()
		c.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
	return resp, nil
}

// Invalidate drops every cached response of the given kinds, or all kinds
// when none are named.
func (c *Cache) Invalidate(ctx context.Context, kinds ...string) (int64, error) {
	patterns := []string{keyPrefix + "*"}
	if len(kinds) > 0 {
		patterns = patterns[:0]
		for _, k := range kinds {
			patterns = append(patterns, keyPrefix+strings.TrimSpace(k)+":*")
		}
	}

	var deleted int64
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return deleted, err
		}
		if len(batch) == 0 {
			continue
		}
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}
