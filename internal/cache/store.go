package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/logger"
	"github.com/ariefcatur/go-marketplace-stock/internal/metrics"
	"github.com/ariefcatur/go-marketplace-stock/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ExpiringKeyValueCache is what the gateway needs from a cache.
type ExpiringKeyValueCache interface {
	Lookup(key string, dst any) bool
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
	ClearPrefix(ctx context.Context, prefix string) error
}

// entry is also the persisted form in Redis.
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // unix millis
	TTL       int64           `json:"ttl"`       // millis
}

func (e entry) expired(now time.Time) bool {
	return now.UnixMilli()-e.Timestamp > e.TTL
}

type Options struct {
	Redis      *redis.Client // optional durable mirror
	Prefix     string
	DefaultTTL time.Duration
	Now        func() time.Time
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Store is an in-memory TTL map mirrored to Redis under Prefix. Reads never
// touch Redis; Load restores the map after a restart.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry

	rdb        *redis.Client
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	log        *zap.Logger
}

var _ ExpiringKeyValueCache = (*Store)(nil)

func New(opts Options) *Store {
	s := &Store{
		entries:    make(map[string]entry),
		rdb:        opts.Redis,
		prefix:     opts.Prefix,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
		metrics:    opts.Metrics,
		log:        logger.OrNop(opts.Logger),
	}
	if s.prefix == "" {
		s.prefix = redisx.DefaultCachePrefix
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = redisx.TTLCache
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Get is the typed read. Absent when never set or when now - set time > ttl.
func Get[T any](c ExpiringKeyValueCache, key string) (T, bool) {
	var v T
	if !c.Lookup(key, &v) {
		var zero T
		return zero, false
	}
	return v, true
}

// Lookup decodes the live entry for key into dst. Expired entries are dropped here.
func (s *Store) Lookup(key string, dst any) bool {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if ok && e.expired(s.now()) {
		s.mu.Lock()
		if cur, still := s.entries[key]; still && cur.Timestamp == e.Timestamp {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		ok = false
	}
	if ok {
		if err := json.Unmarshal(e.Data, dst); err != nil {
			s.log.Warn("cache entry decode failed", zap.String("key", key), zap.Error(err))
			ok = false
		}
	}

	if ok {
		s.metrics.CacheHit()
	} else {
		s.metrics.CacheMiss()
	}
	return ok
}

// Set overwrites key. ttl <= 0 uses the default. A failed Redis mirror is logged,
// the in-memory value still serves reads.
func (s *Store) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	e := entry{Data: data, Timestamp: s.now().UnixMilli(), TTL: ttl.Milliseconds()}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	raw, _ := json.Marshal(e)
	if err := s.rdb.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		s.log.Warn("cache mirror write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

// ClearAll drops every entry under this store's prefix and nothing else.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.ClearPrefix(ctx, "")
}

// ClearPrefix drops the entries whose key starts with prefix, e.g. "products:".
func (s *Store) ClearPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	keys, err := redisx.ScanPrefix(ctx, s.rdb, s.prefix+prefix)
	if err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// Load hydrates the in-memory map from Redis, keeping original timestamps.
// It returns how many live entries were restored.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.rdb == nil {
		return 0, nil
	}
	keys, err := redisx.ScanPrefix(ctx, s.rdb, s.prefix)
	if err != nil {
		return 0, fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache load: %w", err)
	}

	now := s.now()
	restored := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			s.log.Warn("skipping unreadable cache entry", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		if e.expired(now) {
			continue
		}
		key := strings.TrimPrefix(keys[i], s.prefix)
		if cur, exists := s.entries[key]; exists && cur.Timestamp >= e.Timestamp {
			continue
		}
		s.entries[key] = e
		restored++
	}
	return restored, nil
}

// Len counts physically present entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
